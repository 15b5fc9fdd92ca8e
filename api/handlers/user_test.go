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
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/api/handlers"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/databases/mocks"
	"github.com/parkpal/parkpal-api/models"
)

type MockDatabaseHelper struct {
	mock.Mock
}

// Client provides a mock function.
func (_m *MockDatabaseHelper) Client() databases.ClientHelper {
	ret := _m.Called()

	var r0 databases.ClientHelper
	if rf, ok := ret.Get(0).(func() databases.ClientHelper); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(databases.ClientHelper)
		}
	}

	return r0
}

// Collection provides a mock function.
func (_m *MockDatabaseHelper) Collection(name string) databases.CollectionHelper {
	ret := _m.Called(name)

	var r0 databases.CollectionHelper
	if rf, ok := ret.Get(0).(func(string) databases.CollectionHelper); ok {
		r0 = rf(name)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(databases.CollectionHelper)
		}
	}

	return r0
}

func sessionRequest(req *http.Request, userID primitive.ObjectID) *http.Request {
	return req.WithContext(api.ContextWithSession(req.Context(), api.Session{
		UserID: userID.Hex(),
		Email:  "driver@example.com",
	}))
}

func TestUser_AddPlateHandlerFirstPlateBecomesDefault(t *testing.T) {
	userID := primitive.NewObjectID()

	body, _ := json.Marshal(map[string]interface{}{
		"plateNumber": "abc 123",
		"state":       "ca",
	})
	req, err := http.NewRequest("POST", "/api/v1/user/"+userID.Hex()+"/plates", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"user_id": userID.Hex()})
	req = sessionRequest(req, userID)

	db := &MockDatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = userID
		(*arg).Plates = []models.LicensePlate{}
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	var savedPlates []models.LicensePlate
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			update := args.Get(2).(bson.M)
			savedPlates = update["$set"].(bson.M)["plates"].([]models.LicensePlate)
		})
	db.On("Collection", "users").Return(conn)

	u := handlers.User{DB: databases.NewUserDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.AddPlateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	if assert.Len(t, savedPlates, 1) {
		assert.Equal(t, "ABC123", savedPlates[0].PlateNumber)
		assert.Equal(t, "CA", savedPlates[0].State)
		assert.True(t, savedPlates[0].IsDefault, "the first plate always becomes the default")
	}
}

func TestUser_RemovePlateHandlerPromotesNewDefault(t *testing.T) {
	userID := primitive.NewObjectID()
	defaultPlateID := primitive.NewObjectID()
	otherPlateID := primitive.NewObjectID()

	req, err := http.NewRequest("DELETE", "/api/v1/user/"+userID.Hex()+"/plates/"+defaultPlateID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{
		"user_id":  userID.Hex(),
		"plate_id": defaultPlateID.Hex(),
	})
	req = sessionRequest(req, userID)

	db := &MockDatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.User)
		(*arg).ID = userID
		(*arg).Plates = []models.LicensePlate{
			{ID: defaultPlateID, PlateNumber: "AAA111", State: "CA", IsDefault: true},
			{ID: otherPlateID, PlateNumber: "BBB222", State: "NY", IsDefault: false},
		}
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)

	var savedPlates []models.LicensePlate
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			update := args.Get(2).(bson.M)
			savedPlates = update["$set"].(bson.M)["plates"].([]models.LicensePlate)
		})
	db.On("Collection", "users").Return(conn)

	u := handlers.User{DB: databases.NewUserDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.RemovePlateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	if assert.Len(t, savedPlates, 1) {
		assert.Equal(t, otherPlateID, savedPlates[0].ID)
		assert.True(t, savedPlates[0].IsDefault, "removing the default promotes the remaining plate")
	}
}

func TestUser_UserHandlerForbiddenForOtherUsers(t *testing.T) {
	userID := primitive.NewObjectID()
	otherID := primitive.NewObjectID()

	req, err := http.NewRequest("GET", "/api/v1/user/"+userID.Hex(), nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"user_id": userID.Hex()})
	req = sessionRequest(req, otherID)

	db := &MockDatabaseHelper{}
	u := handlers.User{DB: databases.NewUserDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UserHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUser_UserCreateHandlerDuplicateEmail(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"email":    "Taken@Example.com",
		"password": "hunter2hunter2",
		"name":     "Jordan",
	})
	req, err := http.NewRequest("POST", "/api/v1/user/create-user", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	db := &MockDatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	// The duplicate check sees the lowercased email
	conn.On("CountDocuments", mock.Anything, bson.M{"email": "taken@example.com"}).Return(int64(1), nil)
	db.On("Collection", "users").Return(conn)

	u := handlers.User{DB: databases.NewUserDatabase(db)}

	rr := httptest.NewRecorder()
	http.HandlerFunc(u.UserCreateHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}
