package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/config"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/revisit"
)

type settings struct {
	Service  string
	Port     string
	LogLevel string

	AppointmentsURL  string
	PrescriptionsURL string
	CatalogURL       string
	StoreTimeout     time.Duration
	RequestTimeout   time.Duration

	Revisit      revisit.Policy
	Cancellation cancellation.Policy

	DatabaseURL  string
	KafkaBrokers string
	RedisAddr    string
	InflightTTL  time.Duration
}

func loadSettings() (settings, error) {
	var s settings
	var err error

	s.Service = config.String("SERVICE_NAME", "encounter-service")
	s.LogLevel = config.String("LOG_LEVEL", "info")
	if s.Port, err = config.Port("PORT", "8090"); err != nil {
		return s, err
	}

	if s.AppointmentsURL, err = config.RequiredString("APPOINTMENTS_URL"); err != nil {
		return s, err
	}
	s.PrescriptionsURL = config.String("PRESCRIPTIONS_URL", s.AppointmentsURL)
	s.CatalogURL = config.String("CATALOG_URL", s.AppointmentsURL)
	if s.StoreTimeout, err = config.Duration("STORE_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return s, err
	}
	if s.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return s, err
	}

	s.Revisit = revisit.DefaultPolicy()
	tz := config.String("CLINIC_TIMEZONE", "Local")
	if s.Revisit.Location, err = time.LoadLocation(tz); err != nil {
		return s, fmt.Errorf("CLINIC_TIMEZONE must be an IANA zone (got %q): %w", tz, err)
	}
	if s.Revisit.DefaultAge, err = config.Int("REVISIT_DEFAULT_AGE", s.Revisit.DefaultAge); err != nil {
		return s, err
	}
	s.Revisit.RequireAge = config.Bool("REVISIT_REQUIRE_AGE", false)

	s.Cancellation = cancellation.DefaultPolicy()
	if s.Cancellation.MaxReasonLength, err = config.Int("CANCEL_REASON_MAX_LEN", s.Cancellation.MaxReasonLength); err != nil {
		return s, err
	}
	s.Cancellation.HideCancelledPrescriptions = config.Bool("HIDE_CANCELLED_PRESCRIPTIONS", true)

	s.DatabaseURL = config.String("DATABASE_URL", "")
	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.RedisAddr = config.String("REDIS_ADDR", "")
	if s.InflightTTL, err = config.Duration("INFLIGHT_TTL", 30*time.Second); err != nil {
		return s, err
	}
	return s, nil
}
