package domain

// Target selects the granularity of a usage or replacement record.
// The serial requirement is enforced by construction: a serial-level
// target cannot exist without a serial number.
type Target struct {
	level        RecordLevel
	serialNumber string
}

// FixtureLevel targets the fixture as a whole.
func FixtureLevel() Target {
	return Target{level: LevelFixture}
}

// SerialLevel targets one tracked unit.
func SerialLevel(serialNumber string) (Target, error) {
	if serialNumber == "" {
		return Target{}, ErrMissingSerialNumber
	}
	return Target{level: LevelSerial, serialNumber: serialNumber}, nil
}

func (t Target) Level() RecordLevel { return t.level }

func (t Target) SerialNumber() string { return t.serialNumber }

func (t Target) IsSerial() bool { return t.level == LevelSerial }

// Valid reports whether the target was built by a constructor.
func (t Target) Valid() bool {
	return t.level == LevelFixture || (t.level == LevelSerial && t.serialNumber != "")
}
