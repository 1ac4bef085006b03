// pkg/config/courts.go
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Court is one bookable court on the scheduling site. Identity is the
// human-readable court number.
type Court struct {
	Number        int    `yaml:"number" validate:"required,min=1"`
	AppointmentID string `yaml:"appointment_id" validate:"required"`
	CalendarID    string `yaml:"calendar_id" validate:"required"`
	DirectURL     string `yaml:"direct_url" validate:"required,url"`
}

type courtsFile struct {
	Courts []Court `yaml:"courts" validate:"required,min=1,dive"`
}

// DefaultCourts returns the built-in court table used when no courts.yml
// override is present.
func DefaultCourts() []Court {
	return []Court{
		{
			Number:        1,
			AppointmentID: "15970897",
			CalendarID:    "4282490",
			DirectURL:     "https://clublavilla.as.me/?appointmentType=15970897",
		},
		{
			Number:        2,
			AppointmentID: "16021953",
			CalendarID:    "4291312",
			DirectURL:     "https://clublavilla.as.me/?appointmentType=16021953",
		},
		{
			Number:        3,
			AppointmentID: "16120442",
			CalendarID:    "4307254",
			DirectURL:     "https://clublavilla.as.me/?appointmentType=16120442",
		},
	}
}

// LoadCourts reads the court table from a YAML file. A missing file falls
// back to the built-in defaults; a present but invalid file is an error.
func LoadCourts(path string) ([]Court, error) {
	raw, readError := os.ReadFile(path)
	if readError != nil {
		if os.IsNotExist(readError) {
			return DefaultCourts(), nil
		}
		return nil, fmt.Errorf("reading courts file %s: %w", path, readError)
	}

	var parsed courtsFile
	if unmarshalError := yaml.Unmarshal(raw, &parsed); unmarshalError != nil {
		return nil, fmt.Errorf("parsing courts file %s: %w", path, unmarshalError)
	}
	if validationError := validator.New().Struct(parsed); validationError != nil {
		return nil, fmt.Errorf("validating courts file %s: %w", path, validationError)
	}
	return parsed.Courts, nil
}
