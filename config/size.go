package config

import (
	"time"

	"github.com/docker/go-units"
)

type SizeArgument struct {
	Size int64
}

func (s *SizeArgument) UnmarshalText(text []byte) (err error) {
	s.Size, err = units.FromHumanSize(string(text))
	return
}

// MB returns the size in whole megabytes.
func (s SizeArgument) MB() int64 {
	return s.Size / units.MB
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}
