// Package model defines domain entities for the application.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field limits for task text, applied after markup stripping and trimming.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Task is a titled, described unit of work owned by exactly one user.
// OwnerID is set at creation and never changes.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	OwnerID     string             `bson:"userId" json:"userId"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
