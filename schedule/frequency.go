package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidBackupType = errors.New("invalid backup type")
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidFrequency, string(f))
}

func (f Frequency) String() string {
	return string(f)
}

// UnmarshalText lets kong and encoding/json reject unknown values at the boundary.
func (f *Frequency) UnmarshalText(text []byte) error {
	parsed, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type BackupType string

const (
	TypeFull      BackupType = "full"
	TypeFiles     BackupType = "files"
	TypeDatabase  BackupType = "database"
	TypeScheduled BackupType = "scheduled"
)

func ParseBackupType(s string) (BackupType, error) {
	t := BackupType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t BackupType) Validate() error {
	switch t {
	case TypeFull, TypeFiles, TypeDatabase, TypeScheduled:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidBackupType, string(t))
}

func (t BackupType) String() string {
	return string(t)
}

func (t *BackupType) UnmarshalText(text []byte) error {
	parsed, err := ParseBackupType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
