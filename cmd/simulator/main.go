package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/broker"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/push"
)

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// City is a delivery destination offers are generated for.
type City struct {
	Name string
	At   Point
}

// Delivery cities for generated offers
var cities = []City{
	{"Colombo", Point{Lat: 6.9271, Lon: 79.8612}},
	{"Kandy", Point{Lat: 7.2906, Lon: 80.6337}},
	{"Galle", Point{Lat: 6.0535, Lon: 80.2210}},
	{"Jaffna", Point{Lat: 9.6615, Lon: 80.0255}},
	{"Kurunegala", Point{Lat: 7.4863, Lon: 80.3647}},
	{"Anuradhapura", Point{Lat: 8.3114, Lon: 80.4037}},
	{"Ratnapura", Point{Lat: 6.6828, Lon: 80.3992}},
	{"Batticaloa", Point{Lat: 7.7102, Lon: 81.6924}},
	{"Trincomalee", Point{Lat: 8.5874, Lon: 81.2152}},
	{"Matara", Point{Lat: 5.9549, Lon: 80.5550}},
}

var products = []string{"Cement 50kg", "Steel Bars", "Roofing Sheets", "Sand", "Bricks"}

func jitterPoint(base Point, meters float64) Point {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Point{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

// newOffer builds the push a dispatcher sends when a trip is offered to a
// driver.
func newOffer(tripID int64) models.PushPayload {
	city := cities[rand.Intn(len(cities))]
	product := products[rand.Intn(len(products))]
	pin := jitterPoint(city.At, 500)

	return models.PushPayload{
		From:      "dispatch-simulator",
		MessageID: uuid.NewString(),
		Notification: &models.NotificationContent{
			Title: "New Trip Offer",
			Body:  fmt.Sprintf("Trip #%d: %s to %s", tripID, product, city.Name),
		},
		Data: map[string]string{
			"type":      "TRIP_OFFER",
			"tripId":    strconv.FormatInt(tripID, 10),
			"product":   product,
			"location":  city.Name,
			"latitude":  strconv.FormatFloat(pin.Lat, 'f', 6, 64),
			"longitude": strconv.FormatFloat(pin.Lon, 'f', 6, 64),
		},
	}
}

func publishOffer(conn broker.Conn, token string, offer models.PushPayload) error {
	if err := broker.PublishJSON(conn, push.TopicFor(token), offer); err != nil {
		return fmt.Errorf("publish offer: %w", err)
	}
	log.WithFields(log.Fields{
		"trip_id":    offer.Data["tripId"],
		"message_id": offer.MessageID,
		"token":      token,
	}).Info("Sent trip offer")
	return nil
}

// simulateOffers sends one offer per tick, rotating over tokens, until ctx is
// done. It returns how many offers were published.
func simulateOffers(ctx context.Context, conn broker.Conn, tokens []string, firstTripID int64, interval time.Duration) int {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	sent := 0
	tripID := firstTripID
	for {
		select {
		case <-ctx.Done():
			return sent
		case <-tick.C:
			token := tokens[sent%len(tokens)]
			if err := publishOffer(conn, token, newOffer(tripID)); err != nil {
				log.WithError(err).Error("Failed to send trip offer")
				continue
			}
			sent++
			tripID++
		}
	}
}

// devToken signs a driver credential for local runs against a development
// backend.
func devToken(secret string, userID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": "driver",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseTokens(raw string) []string {
	var tokens []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func main() {
	brokerURL := os.Getenv("MQTT_BROKER_URL")
	if brokerURL == "" {
		brokerURL = "tcp://localhost:1883"
	}

	tokens := parseTokens(os.Getenv("PUSH_TOKENS"))

	interval := 5 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	firstTripID := int64(1000)
	if v := os.Getenv("SIM_FIRST_TRIP_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			firstTripID = n
		}
	}

	if secret := os.Getenv("SIM_JWT_SECRET"); secret != "" {
		userID, _ := strconv.ParseInt(os.Getenv("SIM_USER_ID"), 10, 64)
		token, err := devToken(secret, userID, 24*time.Hour)
		if err != nil {
			log.WithError(err).Fatal("Failed to sign development token")
		}
		log.WithField("user_id", userID).Infof("Development token: %s", token)
	}

	if len(tokens) == 0 {
		log.Error("No push tokens configured. Set PUSH_TOKENS to the agents' registration tokens. Exiting.")
		return
	}

	log.WithFields(log.Fields{
		"broker":   brokerURL,
		"tokens":   len(tokens),
		"interval": interval,
	}).Info("Starting dispatch simulation")

	client, err := broker.Connect(brokerURL, "dispatch-simulator-"+uuid.NewString(), log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sent := simulateOffers(ctx, client, tokens, firstTripID, interval)
	log.WithField("offers_sent", sent).Info("Dispatch simulation stopped")
}
