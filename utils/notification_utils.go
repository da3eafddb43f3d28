package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/gomail.v2"

	"github.com/refnet/refnet_backend/config"
	"github.com/refnet/refnet_backend/models"
	"github.com/refnet/refnet_backend/websocket"
)

// LivePusher sends a frame to every live connection of one account.
// *websocket.Hub implements it.
type LivePusher interface {
	SendToUser(userID primitive.ObjectID, notification websocket.Notification) error
}

// Alerts delivers out-of-band notifications: in-app records, live websocket
// frames, FCM pushes and email. Every delivery runs in its own goroutine and
// only logs failures, so the engine never blocks or fails on a notification.
// Implements services.Alerter.
type Alerts struct {
	DB   *mongo.Client
	Live LivePusher
}

func NewAlerts(db *mongo.Client, live LivePusher) *Alerts {
	return &Alerts{DB: db, Live: live}
}

// SaveNotification saves a notification to the database
func SaveNotification(db *mongo.Client, userID primitive.ObjectID, title, message, notifType string, data interface{}) error {
	collection := config.GetCollection(db, "notifications")

	notification := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		Data:      data,
		IsRead:    false,
		CreatedAt: time.Now(),
	}

	_, err := collection.InsertOne(context.Background(), notification)
	return err
}

// WelcomeEmail mails the new account its referral code.
func (a *Alerts) WelcomeEmail(u models.User) {
	if u.Email == "" {
		return
	}
	go func() {
		subject := "Welcome to RefNet"
		body := fmt.Sprintf("Hi %s,\n\nYour account is ready. Your referral code is %s.\nShare your link to start earning commissions: %s\n\nBest regards,\nRefNet",
			u.Username, u.ReferralCode, ReferralLink(os.Getenv("BASE_URL"), u.ReferralCode))
		if err := sendEmail(u.Email, subject, body); err != nil {
			log.Printf("Failed to send welcome email to %s: %v", u.Username, err)
		}
	}()
}

// CommissionEarned records an in-app notification and pushes an FCM message
// to the beneficiary.
func (a *Alerts) CommissionEarned(beneficiaryID primitive.ObjectID, fromUsername string, amount float64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		title := "Commission earned"
		message := fmt.Sprintf("You earned %.2f from a purchase by %s", amount, fromUsername)

		data := map[string]interface{}{
			"fromUsername": fromUsername,
			"amount":       amount,
		}

		if err := SaveNotification(a.DB, beneficiaryID, title, message, "commission_earned", data); err != nil {
			log.Printf("Failed to save commission notification: %v", err)
		}

		// Live frame for any open connection; disconnected beneficiaries
		// still have the stored record and the FCM push.
		if a.Live != nil {
			_ = a.Live.SendToUser(beneficiaryID, websocket.Notification{
				Type:    websocket.EventNotification,
				Message: message,
				Data:    data,
			})
		}

		var user models.User
		err := config.GetCollection(a.DB, "users").FindOne(ctx, bson.M{"_id": beneficiaryID}).Decode(&user)
		if err != nil || user.FCMToken == "" {
			return
		}
		if err := sendPush(ctx, user.FCMToken, title, message); err != nil {
			log.Printf("Failed to send commission push to %s: %v", user.Username, err)
		}
	}()
}

// sendPush delivers one FCM message. A nil Firebase app means pushes are
// disabled.
func sendPush(ctx context.Context, token, title, body string) error {
	if config.FirebaseApp == nil {
		return nil
	}
	client, err := config.FirebaseApp.Messaging(ctx)
	if err != nil {
		return err
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	}
	_, err = client.Send(ctx, message)
	return err
}

// sendEmail delivers one plain-text email over SMTP using gomail
func sendEmail(to, subject, body string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	if smtpHost == "" {
		return nil
	}
	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &smtpPort)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	return d.DialAndSend(m)
}
