package domain

import "time"

// Profile is the per-identity record kept in the profiles table.
// PK: user_id.
type Profile struct {
	UserID       string            `json:"id" dynamodbav:"user_id"`
	Username     string            `json:"username" dynamodbav:"username"`
	Email        string            `json:"email" dynamodbav:"email"`
	MobileNumber string            `json:"mobile_number" dynamodbav:"mobile_number"`
	CreatedAt    time.Time         `json:"created" dynamodbav:"created_at"`
	Predictions  []PredictionEntry `json:"predictions" dynamodbav:"predictions"`
}

// PredictionKind tags the variant of a PredictionEntry.
type PredictionKind string

const (
	KindRainfall PredictionKind = "rainfall"
	KindCrop     PredictionKind = "crop"
	KindYield    PredictionKind = "yield"
)

// PredictionEntry is one submitted-and-answered prediction. Entries are never
// edited; history changes only by whole-list replacement.
// All variants share Year, State and one predicted-value field.
type PredictionEntry struct {
	ID        string         `json:"id" dynamodbav:"id"`
	Kind      PredictionKind `json:"kind" dynamodbav:"kind"`
	Username  string         `json:"username,omitempty" dynamodbav:"username,omitempty"`
	Year      int            `json:"year" dynamodbav:"year"`
	State     string         `json:"state" dynamodbav:"state"`
	CreatedAt time.Time      `json:"created" dynamodbav:"created_at"`

	// Inputs carried into crop and yield predictions.
	Rainfall   *float64 `json:"rainfall,omitempty" dynamodbav:"rainfall,omitempty"`
	Season     string   `json:"season,omitempty" dynamodbav:"season,omitempty"`
	Area       *float64 `json:"area,omitempty" dynamodbav:"area,omitempty"`
	Production *float64 `json:"production,omitempty" dynamodbav:"production,omitempty"`
	Fertilizer *float64 `json:"fertilizer,omitempty" dynamodbav:"fertilizer,omitempty"`
	Pesticides *float64 `json:"pesticides,omitempty" dynamodbav:"pesticides,omitempty"`
	Yield      *float64 `json:"yield,omitempty" dynamodbav:"yield,omitempty"`
	CropName   string   `json:"cropName,omitempty" dynamodbav:"crop_name,omitempty"`

	PredictedRainfall *float64 `json:"predictedRainfall,omitempty" dynamodbav:"predicted_rainfall,omitempty"`
	PredictedCrop     string   `json:"predictedCrop,omitempty" dynamodbav:"predicted_crop,omitempty"`
	PredictedYield    *float64 `json:"predictedYield,omitempty" dynamodbav:"predicted_yield,omitempty"`
}
