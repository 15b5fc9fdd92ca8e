package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/parkpal/parkpal-api/api"
	"github.com/parkpal/parkpal-api/config"
	"github.com/parkpal/parkpal-api/databases"
	"github.com/parkpal/parkpal-api/models"
)

// User exported for testing purposes
type User struct {
	DB databases.UserDatabase
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

// UserCreateHandler creates a new user account
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		config.ErrorStatus("a valid email is required", http.StatusBadRequest, w, fmt.Errorf("got %q", req.Email))
		return
	}
	if len(req.Password) < 8 {
		config.ErrorStatus("password must be at least 8 characters", http.StatusBadRequest, w, fmt.Errorf("password too short"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	count, err := u.DB.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		config.ErrorStatus("failed to check for existing user", http.StatusInternalServerError, w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("an account with this email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	user := models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Password:  string(hash),
		Name:      req.Name,
		Phone:     req.Phone,
		Plates:    []models.LicensePlate{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if _, err := u.DB.InsertOne(ctx, user); err != nil {
		config.ErrorStatus("failed to create user", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("user created", "userId", user.ID.Hex())

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User created successfully",
		"id":      user.ID.Hex(),
	})
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

// UserCheckEmailHandler reports whether an account exists for the given email.
// The mobile client uses this to branch between the login and signup flows.
func (u User) UserCheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	count, err := u.DB.CountDocuments(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	if err != nil {
		config.ErrorStatus("failed to check for existing user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"exists": count > 0,
	})
}

// UserHandler returns a user profile by ID. A user may only read their own
// profile.
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}
	if session.UserID != userID {
		config.ErrorStatus("users may only view their own profile", http.StatusForbidden, w,
			fmt.Errorf("user %s requested profile %s", session.UserID, userID))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := u.DB.FindOne(ctx, bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
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

type updateUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UpdateUserByIDHandler updates the mutable fields of a user profile
func (u User) UpdateUserByIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return
	}
	if session.UserID != userID {
		config.ErrorStatus("users may only update their own profile", http.StatusForbidden, w,
			fmt.Errorf("user %s attempted to update profile %s", session.UserID, userID))
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := u.DB.UpdateOne(ctx, bson.M{"_id": uID}, bson.M{"$set": bson.M{
		"name":      req.Name,
		"phone":     req.Phone,
		"updatedAt": time.Now(),
	}}); err != nil {
		config.ErrorStatus("failed to update user", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User updated successfully",
	})
}

// loadOwnUser resolves the path user against the session and loads the user
// document. Writes the error response itself on failure.
func (u User) loadOwnUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return nil, false
	}

	session, ok := api.SessionFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authenticated", http.StatusUnauthorized, w, fmt.Errorf("missing session"))
		return nil, false
	}
	if session.UserID != userID {
		config.ErrorStatus("users may only manage their own plates", http.StatusForbidden, w,
			fmt.Errorf("user %s attempted to manage plates for %s", session.UserID, userID))
		return nil, false
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := u.DB.FindOne(ctx, bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return nil, false
	}
	return user, true
}

func (u User) savePlates(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, plates []models.LicensePlate) bool {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := u.DB.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"plates":    plates,
		"updatedAt": time.Now(),
	}}); err != nil {
		config.ErrorStatus("failed to update plates", http.StatusInternalServerError, w, err)
		return false
	}
	return true
}

// ListPlatesHandler returns the plates registered on a user profile
func (u User) ListPlatesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := u.loadOwnUser(w, r)
	if !ok {
		return
	}

	plates := user.Plates
	if plates == nil {
		plates = []models.LicensePlate{}
	}
	b, err := json.Marshal(plates)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type plateRequest struct {
	PlateNumber string `json:"plateNumber"`
	State       string `json:"state"`
	IsDefault   bool   `json:"isDefault"`
}

// AddPlateHandler registers a plate on a user profile. The first plate always
// becomes the default; marking a later plate default clears the previous one.
func (u User) AddPlateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := u.loadOwnUser(w, r)
	if !ok {
		return
	}

	var req plateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	plateNumber := normalizePlate(req.PlateNumber)
	if plateNumber == "" {
		config.ErrorStatus("plate number is required", http.StatusBadRequest, w, fmt.Errorf("empty plate number"))
		return
	}

	for _, p := range user.Plates {
		if p.PlateNumber == plateNumber && strings.EqualFold(p.State, req.State) {
			config.ErrorStatus("this plate is already registered", http.StatusConflict, w, fmt.Errorf("duplicate plate"))
			return
		}
	}

	plate := models.LicensePlate{
		ID:          primitive.NewObjectID(),
		PlateNumber: plateNumber,
		State:       strings.ToUpper(strings.TrimSpace(req.State)),
		IsDefault:   req.IsDefault || len(user.Plates) == 0,
	}

	plates := user.Plates
	if plate.IsDefault {
		for i := range plates {
			plates[i].IsDefault = false
		}
	}
	plates = append(plates, plate)

	if !u.savePlates(w, r, user.ID, plates) {
		return
	}

	b, err := json.Marshal(plate)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// UpdatePlateHandler updates a registered plate. Promoting a plate to default
// demotes whichever plate held it before.
func (u User) UpdatePlateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := u.loadOwnUser(w, r)
	if !ok {
		return
	}

	plateID, err := primitive.ObjectIDFromHex(mux.Vars(r)["plate_id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var req plateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	plateNumber := normalizePlate(req.PlateNumber)
	if plateNumber == "" {
		config.ErrorStatus("plate number is required", http.StatusBadRequest, w, fmt.Errorf("empty plate number"))
		return
	}

	plates := user.Plates
	found := false
	for i := range plates {
		if plates[i].ID == plateID {
			plates[i].PlateNumber = plateNumber
			plates[i].State = strings.ToUpper(strings.TrimSpace(req.State))
			if req.IsDefault {
				for j := range plates {
					plates[j].IsDefault = false
				}
				plates[i].IsDefault = true
			}
			found = true
			break
		}
	}
	if !found {
		config.ErrorStatus("plate not found", http.StatusNotFound, w, fmt.Errorf("no plate with id %s", plateID.Hex()))
		return
	}

	if !u.savePlates(w, r, user.ID, plates) {
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Plate updated successfully",
	})
}

// RemovePlateHandler removes a registered plate. If the removed plate was the
// default and others remain, the first remaining plate becomes the default.
func (u User) RemovePlateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := u.loadOwnUser(w, r)
	if !ok {
		return
	}

	plateID, err := primitive.ObjectIDFromHex(mux.Vars(r)["plate_id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	plates := make([]models.LicensePlate, 0, len(user.Plates))
	removedDefault := false
	found := false
	for _, p := range user.Plates {
		if p.ID == plateID {
			found = true
			removedDefault = p.IsDefault
			continue
		}
		plates = append(plates, p)
	}
	if !found {
		config.ErrorStatus("plate not found", http.StatusNotFound, w, fmt.Errorf("no plate with id %s", plateID.Hex()))
		return
	}
	if removedDefault && len(plates) > 0 {
		plates[0].IsDefault = true
	}

	if !u.savePlates(w, r, user.ID, plates) {
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Plate removed successfully",
	})
}
