package strategy

// Direction of a position
type Direction string

const (
	DirectionNone Direction = ""
	Long          Direction = "LONG"
	Short         Direction = "SHORT"
)

func (d Direction) String() string {
	if d == DirectionNone {
		return "NONE"
	}
	return string(d)
}

// Valid reports whether d is Long or Short.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// EntrySide returns the order side that opens a position in this direction.
func (d Direction) EntrySide() string {
	if d == Short {
		return "sell"
	}
	return "buy"
}

// ExitSide returns the order side that closes a position in this direction.
func (d Direction) ExitSide() string {
	if d == Short {
		return "buy"
	}
	return "sell"
}

// ExitReason explains why a position was closed
type ExitReason string

const (
	ExitMeanReversion ExitReason = "MEAN_REVERSION"
	ExitVWAPReversion ExitReason = "VWAP_REVERSION"
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitEndOfDay      ExitReason = "END_OF_DAY"
)

func (r ExitReason) String() string {
	return string(r)
}

// EntrySignal is produced when a gap fade setup triggers
type EntrySignal struct {
	Direction Direction
	Price     float64 // latest price at evaluation
	GapPct    float64
	BandValue float64 // the band that was touched
}

// ExitSignal is produced when an open position should be closed
type ExitSignal struct {
	Reason ExitReason
	Price  float64
}

// Config holds the signal parameters
type Config struct {
	GapThreshold float64 // minimum |gap| as a fraction, e.g. 0.005
	BandLookback int     // bars in the rolling band window
	BandMult     float64 // std multiplier for upper/lower bands
	StopPct      float64 // stop distance as a fraction of entry
	UseVWAPExit  bool
}

// DefaultConfig returns the stock parameters
func DefaultConfig() Config {
	return Config{
		GapThreshold: 0.005,
		BandLookback: 20,
		BandMult:     2.0,
		StopPct:      0.01,
		UseVWAPExit:  true,
	}
}
