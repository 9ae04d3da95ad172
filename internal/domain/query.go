package domain

// RainfallQuery is the prediction oracle input for a rainfall estimate.
type RainfallQuery struct {
	Year  int    `json:"year"`
	State string `json:"state"`
}

// CropQuery is the prediction oracle input for a crop recommendation.
// Rainfall is carried forward from a rainfall prediction.
type CropQuery struct {
	Year       int     `json:"year"`
	State      string  `json:"state"`
	Season     string  `json:"season"`
	Area       float64 `json:"area"`
	Production float64 `json:"production"`
	Rainfall   float64 `json:"rainfall"`
	Fertilizer float64 `json:"fertilizer"`
	Pesticides float64 `json:"pesticides"`
	Yield      float64 `json:"yield"`
}

// YieldQuery is the prediction oracle input for a yield estimate.
// Year, State and Rainfall are carried forward from a rainfall prediction.
type YieldQuery struct {
	Year       int     `json:"year"`
	State      string  `json:"state"`
	CropName   string  `json:"crop_name"`
	Rainfall   float64 `json:"rainfall"`
	Fertilizer float64 `json:"fertilizer"`
	Pesticides float64 `json:"pesticides"`
}
