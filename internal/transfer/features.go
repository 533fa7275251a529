package transfer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/risk"
)

// TimeLabelLayout formats the time attached to a transfer when the caller
// does not override it.
const TimeLabelLayout = "02-01-2006 15:04"

// timeLabelLayouts are tried in order when reading a time label back.
var timeLabelLayouts = []string{
	TimeLabelLayout,
	"2006-01-02T15:04",
	time.RFC3339,
	"02/01/2006 15:04:05",
	"2006-01-02 15:04",
}

func parseTimeLabel(label string) (time.Time, bool) {
	label = strings.TrimSpace(label)
	for _, layout := range timeLabelLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isWeekend reports whether label names a Saturday or Sunday. Labels that do
// not parse count as weekdays.
func isWeekend(label string) bool {
	t, ok := parseTimeLabel(label)
	if !ok {
		return false
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// transferInputs are the values a feature record is built from. Location is
// already resolved; device and IP are the caller's raw choices.
type transferInputs struct {
	TransactionID string
	Amount        decimal.Decimal
	TimeLabel     string
	Location      string
	DeviceChoice  string
	IPChoice      string
}

func pendingInputs(p *account.PendingTransfer) transferInputs {
	return transferInputs{
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		TimeLabel:     p.TimeLabel,
		Location:      p.Location,
		DeviceChoice:  p.DeviceChoice,
		IPChoice:      p.IPChoice,
	}
}

// signals compares the inputs against the account's live values.
func (in transferInputs) signals(a *account.Account) risk.Signals {
	return risk.Signals{
		LocationOverride: in.Location,
		DeviceChoice:     in.DeviceChoice,
		IPChoice:         in.IPChoice,
		HomeLocation:     a.Location,
		CurrentDevice:    a.CurrentDevice(),
		CurrentIP:        a.CurrentIP(),
	}
}

// features builds the model input. The spend summary stands in for the
// per-transaction statistics the service does not track.
func (in transferInputs) features(a *account.Account) risk.FeatureRecord {
	distance := risk.DistanceHomeKM
	if risk.LocationChanged(in.Location, a.Location) {
		distance = risk.DistanceChangedKM
	}
	return risk.FeatureRecord{
		TransactionID:    in.TransactionID,
		AccountID:        a.ID,
		Amount:           in.Amount.InexactFloat64(),
		TimeLabel:        in.TimeLabel,
		Balance:          a.Balance.InexactFloat64(),
		DeviceType:       risk.Resolve(in.DeviceChoice, a.CurrentDevice()),
		Location:         in.Location,
		MerchantCategory: risk.MerchantCategoryTransfer,
		IPAddress:        risk.Resolve(in.IPChoice, a.CurrentIP()),
		IPFlagged:        strings.EqualFold(strings.TrimSpace(in.IPChoice), "unknown"),
		PreviousAmount:   a.Spend.Outflow.InexactFloat64(),
		DailyCount:       1,
		AvgAmountPerDay:  a.Spend.Inflow.InexactFloat64(),
		AvgAmount7Day:    a.Spend.Outflow.InexactFloat64(),
		FailedCount7d:    0,
		CardType:         risk.CardTypeDebit,
		CardAgeMonths:    a.CardAgeMonths,
		DistanceKM:       distance,
		AuthMethod:       risk.AuthMethodOTP,
		IsWeekend:        isWeekend(in.TimeLabel),
	}
}
