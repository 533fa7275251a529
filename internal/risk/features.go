package risk

// Fixed feature values for transfers initiated through this service.
const (
	MerchantCategoryTransfer = "Transfer"
	CardTypeDebit            = "Debit"
	AuthMethodOTP            = "OTP"

	// Distances stand in for geolocation, which the service does not have.
	DistanceHomeKM    = 5.0
	DistanceChangedKM = 426.78
)

// Column names in the model's training data.
const (
	ColTransactionID    = "Transaction_ID"
	ColUserID           = "User_ID"
	ColAmount           = "Transaction_Amount"
	ColTime             = "Transaction_Time"
	ColBalance          = "Account_Balance"
	ColDeviceType       = "Device_Type"
	ColLocation         = "Location"
	ColMerchantCategory = "Merchant_Category"
	ColIPAddress        = "IP_Address"
	ColIPFlagged        = "IP_Address_Flagged"
	ColPreviousAmount   = "Previous_Transaction_Amount"
	ColDailyCount       = "Daily_transaction_count"
	ColAvgPerDay        = "Avg_Transaction_Amount_Per_Day"
	ColAvg7Day          = "Avg_Transactions_amount_7Day"
	ColFailedCount7d    = "Failed_Transaction_Count_7d"
	ColCardType         = "Card_Type"
	ColCardAgeMonths    = "Card_Age_Months"
	ColDistanceKM       = "Transaction_Distance_KM"
	ColAuthMethod       = "Authentication_Method"
	ColIsWeekend        = "Is_Weekend"
)

// FeatureRecord is the flat input a Model scores. Its shape is fixed; how the
// values are encoded is the model's concern.
type FeatureRecord struct {
	TransactionID    string  `json:"transactionId"`
	AccountID        string  `json:"accountId"`
	Amount           float64 `json:"amount"`
	TimeLabel        string  `json:"timeLabel"`
	Balance          float64 `json:"balance"`
	DeviceType       string  `json:"deviceType"`
	Location         string  `json:"location"`
	MerchantCategory string  `json:"merchantCategory"`
	IPAddress        string  `json:"ipAddress"`
	IPFlagged        bool    `json:"ipFlagged"`
	PreviousAmount   float64 `json:"previousAmount"`
	DailyCount       int     `json:"dailyCount"`
	AvgAmountPerDay  float64 `json:"avgAmountPerDay"`
	AvgAmount7Day    float64 `json:"avgAmount7Day"`
	FailedCount7d    int     `json:"failedCount7d"`
	CardType         string  `json:"cardType"`
	CardAgeMonths    int     `json:"cardAgeMonths"`
	DistanceKM       float64 `json:"distanceKm"`
	AuthMethod       string  `json:"authMethod"`
	IsWeekend        bool    `json:"isWeekend"`
}

// categorical returns the string-valued columns.
func (r FeatureRecord) categorical() map[string]string {
	return map[string]string{
		ColTransactionID:    r.TransactionID,
		ColUserID:           r.AccountID,
		ColDeviceType:       r.DeviceType,
		ColLocation:         r.Location,
		ColMerchantCategory: r.MerchantCategory,
		ColIPAddress:        r.IPAddress,
		ColCardType:         r.CardType,
		ColAuthMethod:       r.AuthMethod,
	}
}

// numeric returns the number-valued columns, binary flags included.
func (r FeatureRecord) numeric() map[string]float64 {
	return map[string]float64{
		ColAmount:         r.Amount,
		ColBalance:        r.Balance,
		ColIPFlagged:      boolFloat(r.IPFlagged),
		ColPreviousAmount: r.PreviousAmount,
		ColDailyCount:     float64(r.DailyCount),
		ColAvgPerDay:      r.AvgAmountPerDay,
		ColAvg7Day:        r.AvgAmount7Day,
		ColFailedCount7d:  float64(r.FailedCount7d),
		ColCardAgeMonths:  float64(r.CardAgeMonths),
		ColDistanceKM:     r.DistanceKM,
		ColIsWeekend:      boolFloat(r.IsWeekend),
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
