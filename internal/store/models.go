package store

import "time"

// User holds both the identity record and the extended profile. The profile
// fields are created with the account and mutated only through partial
// updates, so unspecified fields are never clobbered.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Bio          string
	Location     string
	Interests    []string
	ProfileImage string
	CoverImage   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the mutable slice of a User exposed to the owning client.
type Profile struct {
	DisplayName  string   `json:"displayName"`
	Bio          string   `json:"bio"`
	Location     string   `json:"location"`
	Interests    []string `json:"interests"`
	ProfileImage string   `json:"profileImage"`
	CoverImage   string   `json:"coverImage"`
}

// ProfilePatch carries a partial profile update. Nil fields are left
// untouched by UpdateProfile (merge, not overwrite).
type ProfilePatch struct {
	DisplayName  *string   `json:"displayName"`
	Bio          *string   `json:"bio"`
	Location     *string   `json:"location"`
	Interests    *[]string `json:"interests"`
	ProfileImage *string   `json:"profileImage"`
	CoverImage   *string   `json:"coverImage"`
}

// Comment is embedded inside its parent post as a JSON array element. The ID
// is generated client-side because the comment is not a document of its own.
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Post is a community feed entry. Likes is a uid set stored as an array;
// membership is only ever changed through add-unique / remove-by-value
// updates. ClientTimestamp is what the creating session observed;
// ServerTimestamp is canonical and drives feed ordering.
type Post struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	UserAvatar      string    `json:"userAvatar"`
	Content         string    `json:"content"`
	Image           string    `json:"image,omitempty"`
	Likes           []string  `json:"likes"`
	Comments        []Comment `json:"comments"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

type Journey struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	UserEmail   string    `json:"userEmail"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Image       string    `json:"image,omitempty"`
	Likes       []string  `json:"likes"`
	CreatedAt   time.Time `json:"createdAt"`
	// Populated on list reads; comments themselves load lazily.
	CommentsCount int `json:"commentsCount"`
}

// JourneyComment is a standalone document referencing its journey, queried
// rather than embedded so the count is cheap and the list loads lazily.
type JourneyComment struct {
	ID        string    `json:"id"`
	JourneyID string    `json:"journeyId"`
	UserID    string    `json:"userId"`
	UserEmail string    `json:"userEmail"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Challenge struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	Impact      string `json:"impact"`
	DueDate     string `json:"dueDate,omitempty"`
	Completed   bool   `json:"completed"`
}

// CarbonEntry is one row of the append-only per-user footprint series,
// ordered by date ascending for charting.
type CarbonEntry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Date           time.Time `json:"date"`
	Total          float64   `json:"total"`
	Transportation float64   `json:"transportation"`
	Energy         float64   `json:"energy"`
	Consumption    float64   `json:"consumption"`
	Waste          float64   `json:"waste"`
}
