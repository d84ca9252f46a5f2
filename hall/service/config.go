package service

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/hall/utils"
)

// Config carries every externalized business-rule constant. Rule changes
// are env changes, not code changes.
type Config struct {
	// Registration queue
	ReSignCycleDays int
	ReSignGraceDays int

	// Dispatch
	ShortCallMaxDays   int // business days at or under which a call is short
	LongCallUnderDays  int // business days at or under which a short call reclassifies as long
	ShortCallsPerCycle int

	// Enforcement
	CheckMarkCap int
	BlackoutDays int

	// Bidding; times are "HH:MM" wall-clock in Location
	BidWindowOpen          string
	BidWindowClose         string
	BidRejectionWindowMo   int
	BidSuspensionYears     int

	// Intake
	IntakeCutoff string

	// Anti-collusion review signal
	ByNameRatioThreshold float64
	ByNameWindowMonths   int

	// Morning referral ordering
	ClassificationOrder []string

	Location *time.Location

	bidWindowOpen  dayClock
	bidWindowClose dayClock
	intakeCutoff   dayClock
}

// dayClock is a wall-clock time of day in minutes since midnight.
type dayClock int

func parseDayClock(s string) (dayClock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid wall-clock time %q", s)
	}
	return dayClock(t.Hour()*60 + t.Minute()), nil
}

func (d dayClock) at(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(d)/60, int(d)%60, 0, 0, loc)
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ReSignCycleDays:      utils.GetEnvInt("HALL_RESIGN_CYCLE_DAYS", 30),
		ReSignGraceDays:      utils.GetEnvInt("HALL_RESIGN_GRACE_DAYS", 3),
		ShortCallMaxDays:     utils.GetEnvInt("HALL_SHORT_CALL_MAX_DAYS", 10),
		LongCallUnderDays:    utils.GetEnvInt("HALL_LONG_CALL_UNDER_DAYS", 3),
		ShortCallsPerCycle:   utils.GetEnvInt("HALL_SHORT_CALLS_PER_CYCLE", 2),
		CheckMarkCap:         utils.GetEnvInt("HALL_CHECK_MARK_CAP", 3),
		BlackoutDays:         utils.GetEnvInt("HALL_BLACKOUT_DAYS", 14),
		BidWindowOpen:        utils.GetEnvString("HALL_BID_WINDOW_OPEN", "17:30"),
		BidWindowClose:       utils.GetEnvString("HALL_BID_WINDOW_CLOSE", "07:00"),
		BidRejectionWindowMo: utils.GetEnvInt("HALL_BID_REJECTION_WINDOW_MONTHS", 12),
		BidSuspensionYears:   utils.GetEnvInt("HALL_BID_SUSPENSION_YEARS", 1),
		IntakeCutoff:         utils.GetEnvString("HALL_INTAKE_CUTOFF", "15:00"),
		ByNameRatioThreshold: utils.GetEnvFloat("HALL_BY_NAME_RATIO_THRESHOLD", 0.5),
		ByNameWindowMonths:   utils.GetEnvInt("HALL_BY_NAME_WINDOW_MONTHS", 6),
		ClassificationOrder: strings.Split(
			utils.GetEnvString("HALL_CLASSIFICATION_ORDER", "WIREMAN,SOUND_COMM,TRADESHOW"), ","),
	}

	loc, err := time.LoadLocation(utils.GetEnvString("HALL_TIME_LOCATION", "America/Los_Angeles"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid HALL_TIME_LOCATION")
	}
	cfg.Location = loc

	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) compile() error {
	var err error
	if c.bidWindowOpen, err = parseDayClock(c.BidWindowOpen); err != nil {
		return err
	}
	if c.bidWindowClose, err = parseDayClock(c.BidWindowClose); err != nil {
		return err
	}
	if c.intakeCutoff, err = parseDayClock(c.IntakeCutoff); err != nil {
		return err
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return nil
}
