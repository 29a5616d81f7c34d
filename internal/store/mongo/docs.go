package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"expensewise/internal/auth"
	"expensewise/internal/core"
)

type expenseDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	AmountCents int64              `bson:"amountCents"`
	Category    string             `bson:"category"`
	Date        time.Time          `bson:"date"`
	UserID      string             `bson:"userId"`
	CreatedAt   time.Time          `bson:"createdAt"`
	ExportedAt  *time.Time         `bson:"exportedAt,omitempty"`
}

func (d expenseDoc) toCore() core.Expense {
	return core.Expense{
		ID:        d.ID.Hex(),
		Amount:    core.Money{Cents: d.AmountCents},
		Category:  d.Category,
		Date:      d.Date.UTC(),
		UserID:    d.UserID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

type categoryDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d categoryDoc) toCore() core.Category {
	return core.Category{ID: d.ID.Hex(), Name: d.Name, CreatedAt: d.CreatedAt.UTC()}
}

type profileDoc struct {
	FullName    string `bson:"fullName"`
	Role        string `bson:"role"`
	PhoneNumber string `bson:"phoneNumber"`
}

type accountDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (d accountDoc) toAuth() auth.User {
	return auth.User{ID: d.ID, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt.UTC()}
}
