package catalog

// KennelSize is the physical size class of a kennel or dog.
type KennelSize string

// Recognized size classes, ordered smallest to largest.
const (
	SizeSmall  KennelSize = "small"
	SizeMedium KennelSize = "medium"
	SizeLarge  KennelSize = "large"
)

// sizeRank orders size classes for best-fit selection.
// Unknown sizes rank below small and never fit anything.
var sizeRank = map[KennelSize]int{
	SizeSmall:  1,
	SizeMedium: 2,
	SizeLarge:  3,
}

// Rank returns the ordering value of the size class, or 0 when unknown.
func (s KennelSize) Rank() int {
	return sizeRank[s]
}

// Valid reports whether s is a recognized size class.
func (s KennelSize) Valid() bool {
	return sizeRank[s] != 0
}

// Fits reports whether a kennel of this size can hold a dog of the given
// size. A kennel fits any dog of equal or smaller size class.
func (s KennelSize) Fits(dog KennelSize) bool {
	return s.Valid() && dog.Valid() && s.Rank() >= dog.Rank()
}

// Store is a physical location holding a set of kennels.
type Store struct {
	StoreID string   `json:"storeID"`
	Name    string   `json:"name"`
	Kennels []Kennel `json:"kennels"`
}

// Kennel is one bookable unit inside a store. Booked and Occupied are
// catalog-side flags that mirror the reservation lifecycle.
type Kennel struct {
	ID         int        `json:"ID"`
	Size       KennelSize `json:"size"`
	UnlockCode string     `json:"unlockCode"`
	Booked     bool       `json:"booked"`
	Occupied   bool       `json:"occupied"`
}

// User is a registered owner with push endpoints and dogs.
type User struct {
	UserID         string   `json:"userID"`
	Name           string   `json:"name"`
	FirebaseTokens []string `json:"firebaseTokens"`
	Dogs           []Dog    `json:"dogs"`
}

// Dog is a registered animal. Per-dog ideal ranges are optional and
// override the breed's ambient ranges when present.
type Dog struct {
	DogID               string     `json:"dogID"`
	Name                string     `json:"name"`
	BreedID             string     `json:"breedID"`
	Size                KennelSize `json:"size"`
	MinIdealTemperature *float64   `json:"minIdealTemperature,omitempty"`
	MaxIdealTemperature *float64   `json:"maxIdealTemperature,omitempty"`
	MinIdealHumidity    *float64   `json:"minIdealHumidity,omitempty"`
	MaxIdealHumidity    *float64   `json:"maxIdealHumidity,omitempty"`
}

// Breed carries the ambient comfort ranges for a breed.
type Breed struct {
	BreedID               string  `json:"breedID"`
	Name                  string  `json:"name"`
	MinAmbientTemperature float64 `json:"minAmbientTemperature"`
	MaxAmbientTemperature float64 `json:"maxAmbientTemperature"`
	MinAmbientHumidity    float64 `json:"minAmbientHumidity"`
	MaxAmbientHumidity    float64 `json:"maxAmbientHumidity"`
}
