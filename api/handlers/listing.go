package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

// Listing exported for testing purposes
type Listing struct {
	DB databases.ListingDatabase
}

// CreateListingHandler creates a listing owned by the authenticated host
func (l Listing) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}
	hostID, err := primitive.ObjectIDFromHex(session.UserID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var listing models.Listing
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	if listing.HourlyPriceCents < 0 {
		config.ErrorStatus("hourly price must not be negative", http.StatusBadRequest, w, fmt.Errorf("got %d", listing.HourlyPriceCents))
		return
	}
	if listing.Availability.StartMinute < 0 || listing.Availability.EndMinute > 24*60 ||
		listing.Availability.StartMinute >= listing.Availability.EndMinute {
		config.ErrorStatus("availability window is invalid", http.StatusBadRequest, w,
			fmt.Errorf("got [%d, %d)", listing.Availability.StartMinute, listing.Availability.EndMinute))
		return
	}

	listing.ID = primitive.NewObjectID()
	listing.HostUserID = hostID
	listing.Active = true
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = listing.CreatedAt

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := l.DB.InsertOne(ctx, listing); err != nil {
		config.ErrorStatus("failed to create listing", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Listing created successfully",
		"id":      listing.ID.Hex(),
	})
}

// ListingByIDHandler returns a listing by ID
func (l Listing) ListingByIDHandler(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["listing_id"]

	zap.S().Debugf("listing_id: %v", listingID)

	lID, err := primitive.ObjectIDFromHex(listingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := l.DB.FindOne(ctx, bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get listing by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ListingHandler returns all active listings, optionally filtered by city
func (l Listing) ListingHandler(w http.ResponseWriter, r *http.Request) {
	limit := getLimit(r)
	page := getPage(0, r)
	limit64 := int64(limit)
	skip64 := int64(page * limit)

	filter := bson.M{"active": true}
	if city := r.URL.Query().Get("city"); city != "" {
		filter["address.city"] = city
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := l.DB.Find(ctx, filter, &options.FindOptions{Limit: &limit64, Skip: &skip64})
	if err != nil {
		config.ErrorStatus("failed to get listings", http.StatusNotFound, w, err)
		return
	}
	// The mobile client requires the data elements to exist, so return an
	// empty array rather than null
	if len(dbResp) == 0 {
		dbResp = []models.Listing{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ListingsByHostIDHandler returns all listings owned by the given host
func (l Listing) ListingsByHostIDHandler(w http.ResponseWriter, r *http.Request) {
	hostID := mux.Vars(r)["host_id"]

	hID, err := primitive.ObjectIDFromHex(hostID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := l.DB.Find(ctx, bson.M{"hostUserId": hID})
	if err != nil {
		config.ErrorStatus("failed to get listings by host id", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Listing{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateListingHandler updates a listing's details. Only the owning host may update.
func (l Listing) UpdateListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["listing_id"]

	lID, err := primitive.ObjectIDFromHex(listingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	existing, err := l.DB.FindOne(ctx, bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get listing by ID", http.StatusNotFound, w, err)
		return
	}
	if existing.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the listing host may update it", http.StatusForbidden, w, fmt.Errorf("user %s is not the host", session.UserID))
		return
	}

	var update models.Listing
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if update.HourlyPriceCents < 0 {
		config.ErrorStatus("hourly price must not be negative", http.StatusBadRequest, w, fmt.Errorf("got %d", update.HourlyPriceCents))
		return
	}

	_, err = l.DB.UpdateOne(ctx, bson.M{"_id": lID}, bson.M{"$set": bson.M{
		"title":            update.Title,
		"description":      update.Description,
		"hourlyPriceCents": update.HourlyPriceCents,
		"address":          update.Address,
		"availability":     update.Availability,
		"imageUrls":        update.ImageURLs,
		"active":           update.Active,
		"updatedAt":        time.Now(),
	}})
	if err != nil {
		config.ErrorStatus("failed to update listing", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Listing updated successfully",
	})
}

// DeleteListingHandler deletes a listing by ID. Only the owning host may delete.
func (l Listing) DeleteListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["listing_id"]

	lID, err := primitive.ObjectIDFromHex(listingID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	existing, err := l.DB.FindOne(ctx, bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get listing by ID", http.StatusNotFound, w, err)
		return
	}
	if existing.HostUserID.Hex() != session.UserID {
		config.ErrorStatus("only the listing host may delete it", http.StatusForbidden, w, fmt.Errorf("user %s is not the host", session.UserID))
		return
	}

	if _, err := l.DB.DeleteOne(ctx, bson.M{"_id": lID}); err != nil {
		config.ErrorStatus("failed to delete listing", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Listing deleted successfully",
	})
}

func getPage(page int, r *http.Request) int {
	if r.URL.Query().Get("page") == "" {
		zap.S().Warnf("page not set, using default of %v", page)
	} else {
		var err error
		page, err = strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			zap.S().Errorf(fmt.Sprintf("error parsing page number: %v", err))
		}
		if page < 0 {
			zap.S().Warnf(fmt.Sprintf("cannot process page number less than 0. Got: %v", page))
			return 0
		}
	}
	return page
}

func getLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		zap.S().Warnf("limit not set, using default of 10")
		return 10
	}
	return limit
}
