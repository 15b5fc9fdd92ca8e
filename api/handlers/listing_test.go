package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/parkpal/parkpal-api/api/handlers"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/databases/mocks"
	"github.com/parkpal/parkpal-api/models"
)

func TestListing_ListingByIDHandlerBadHex(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/listing/1234", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"listing_id": "1234"})

	db := &MockDatabaseHelper{}
	l := handlers.Listing{DB: databases.NewListingDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.ListingByIDHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "failed to get objectID from Hex", Error: "the provided hex string is not a valid ObjectID"}}
	b, _ := json.Marshal(expected)
	assert.Equal(t, string(b), rr.Body.String())
}

func TestListing_CreateListingHandlerInvalidWindow(t *testing.T) {
	hostID := primitive.NewObjectID()

	body, _ := json.Marshal(map[string]interface{}{
		"title":            "Driveway near the stadium",
		"hourlyPriceCents": 800,
		"availability":     map[string]int{"startMinute": 600, "endMinute": 540},
	})
	req, err := http.NewRequest("POST", "/api/v1/listing", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, hostID)

	db := &MockDatabaseHelper{}
	l := handlers.Listing{DB: databases.NewListingDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.CreateListingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "availability window is invalid")
}

func TestListing_CreateListingHandlerNegativePrice(t *testing.T) {
	hostID := primitive.NewObjectID()

	body, _ := json.Marshal(map[string]interface{}{
		"title":            "Driveway near the stadium",
		"hourlyPriceCents": -1,
		"availability":     map[string]int{"startMinute": 0, "endMinute": 1440},
	})
	req, err := http.NewRequest("POST", "/api/v1/listing", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req = sessionRequest(req, hostID)

	db := &MockDatabaseHelper{}
	l := handlers.Listing{DB: databases.NewListingDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.CreateListingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "hourly price must not be negative")
}

func TestListing_UpdateListingHandlerForbiddenForNonHost(t *testing.T) {
	listingID := primitive.NewObjectID()
	ownerID := primitive.NewObjectID()
	strangerID := primitive.NewObjectID()

	body, _ := json.Marshal(map[string]interface{}{"title": "Hijacked"})
	req, err := http.NewRequest("PUT", "/api/v1/listing/"+listingID.Hex(), bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"listing_id": listingID.Hex()})
	req = sessionRequest(req, strangerID)

	db := &MockDatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Listing)
		(*arg).ID = listingID
		(*arg).HostUserID = ownerID
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.On("Collection", "listings").Return(conn)

	l := handlers.Listing{DB: databases.NewListingDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(l.UpdateListingHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	conn.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}
