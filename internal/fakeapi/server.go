// Package fakeapi is an in-process stand-in for the corpus API used by tests. Every endpoint behaves like a
// healthy deployment until a canned response is registered for its route.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/swecha/corpus-contrib/network"
)

// Route names, usable with Respond and Calls.
const (
	RouteLogin                 = "login"
	RouteMe                    = "me"
	RouteLoginSendOTP          = "login-send-otp"
	RouteLoginVerifyOTP        = "login-verify-otp"
	RouteSignupSendOTP         = "signup-send-otp"
	RouteSignupVerifyOTP       = "signup-verify-otp"
	RouteForgotPasswordInit    = "forgot-password-init"
	RouteForgotPasswordConfirm = "forgot-password-confirm"
	RouteChangePassword        = "change-password"
	RouteCategories            = "categories"
	RouteLegacyCategories      = "legacy-categories"
	RouteUploadChunk           = "upload-chunk"
	RouteFinalize              = "finalize"
	RouteContributions         = "contributions"
)

// ValidOTP is the only OTP the fake accepts.
const ValidOTP = "123456"

const maxChunkMemory = 32 << 20

// Response is a canned answer for a route.
type Response struct {
	Status int
	Body   string
}

// Chunk is a received chunk upload.
type Chunk struct {
	UploadID    string
	Filename    string
	ContentType string
	Index       int
	Total       int
	Data        []byte
}

type account struct {
	password string
	user     network.User
}

// Server ...
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	calls         map[string]int
	responses     map[string][]Response
	accounts      map[string]account
	tokens        map[string]string
	categories    []network.Category
	contributions map[string]network.Contributions
	chunks        []Chunk
	finalized     []url.Values
	signups       []network.SignupRequest
}

// New starts a fake API. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		calls:         map[string]int{},
		responses:     map[string][]Response{},
		accounts:      map[string]account{},
		tokens:        map[string]string{},
		contributions: map[string]network.Contributions{},
		categories: []network.Category{
			{ID: "cat-1", Name: "Folk Tales"},
			{ID: "cat-2", Name: "Festivals"},
		},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// ClientParams points a network client at the fake with fast retries.
func (s *Server) ClientParams() network.ClientParams {
	return network.ClientParams{
		BaseURL:      s.URL,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	}
}

// AddAccount registers an account and returns the bearer token the fake issues for it.
func (s *Server) AddAccount(phone, password string, user network.User) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Phone == "" {
		user.Phone = phone
	}
	token := "token-" + user.ID
	s.accounts[phone] = account{password: password, user: user}
	s.tokens[token] = phone
	return token
}

// SetCategories replaces the category listing.
func (s *Server) SetCategories(categories []network.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
}

// SetContributions sets the listing returned for userID. Unknown users get a 404.
func (s *Server) SetContributions(userID string, contributions network.Contributions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions[userID] = contributions
}

// Respond queues canned responses for route. They are served in order, one per call, after which the
// route behaves normally again. A Response with Status 0 lets its call through.
func (s *Server) Respond(route string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[route] = append(s.responses[route], responses...)
}

// RespondAlways makes every call of route answer with status and body.
func (s *Server) RespondAlways(route string, status int, body string) {
	s.Respond(route, repeat(Response{Status: status, Body: body}, 1000)...)
}

// Calls returns how many requests route received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Chunks returns the received chunk uploads.
func (s *Server) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chunk(nil), s.chunks...)
}

// Finalized returns the forms of the accepted finalize calls.
func (s *Server) Finalized() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.finalized...)
}

// Signups returns the accepted signup requests.
func (s *Server) Signups() []network.SignupRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]network.SignupRequest(nil), s.signups...)
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/auth/login", s.login).Methods(http.MethodPost).Name(RouteLogin)
	r.HandleFunc("/auth/me", s.me).Methods(http.MethodGet).Name(RouteMe)
	r.HandleFunc("/auth/login/send-otp", s.sendOTP).Methods(http.MethodPost).Name(RouteLoginSendOTP)
	r.HandleFunc("/auth/login/verify-otp", s.verifyLoginOTP).Methods(http.MethodPost).Name(RouteLoginVerifyOTP)
	r.HandleFunc("/auth/signup/send-otp", s.sendOTP).Methods(http.MethodPost).Name(RouteSignupSendOTP)
	r.HandleFunc("/auth/signup/verify-otp", s.verifySignupOTP).Methods(http.MethodPost).Name(RouteSignupVerifyOTP)
	r.HandleFunc("/auth/forgot-password/init", s.forgotPasswordInit).Methods(http.MethodPost).Name(RouteForgotPasswordInit)
	r.HandleFunc("/auth/forgot-password/confirm", s.forgotPasswordConfirm).Methods(http.MethodPost).Name(RouteForgotPasswordConfirm)
	r.HandleFunc("/auth/change-password", s.changePassword).Methods(http.MethodPost).Name(RouteChangePassword)
	r.HandleFunc("/categories/", s.listCategories).Methods(http.MethodGet).Name(RouteCategories)
	r.HandleFunc("/category/", s.listCategories).Methods(http.MethodGet).Name(RouteLegacyCategories)
	r.HandleFunc("/records/upload/chunk", s.uploadChunk).Methods(http.MethodPost).Name(RouteUploadChunk)
	r.HandleFunc("/records/upload", s.finalize).Methods(http.MethodPost).Name(RouteFinalize)
	r.HandleFunc("/users/{id}/contributions", s.listContributions).Methods(http.MethodGet).Name(RouteContributions)
	r.Use(s.record)
	return r
}

// record counts the call and serves a queued canned response, if any.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := mux.CurrentRoute(r).GetName()

		s.mu.Lock()
		s.calls[name]++
		var canned *Response
		if queue := s.responses[name]; len(queue) > 0 {
			canned = &queue[0]
			s.responses[name] = queue[1:]
		}
		s.mu.Unlock()

		if canned != nil && canned.Status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.Status)
			_, _ = io.WriteString(w, canned.Body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Phone]
	s.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect phone number or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": "token-" + acc.user.ID, "token_type": "bearer"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authorize(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (s *Server) verifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		OTPCode     string `json:"otp_code"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.PhoneNumber]
	s.mu.Unlock()
	if !ok || req.OTPCode != ValidOTP {
		writeDetail(w, http.StatusBadRequest, "Invalid OTP")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": "token-" + acc.user.ID, "token_type": "bearer"})
}

func (s *Server) verifySignupOTP(w http.ResponseWriter, r *http.Request) {
	var req network.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OTPCode != ValidOTP {
		writeDetail(w, http.StatusBadRequest, "Invalid OTP")
		return
	}

	s.mu.Lock()
	s.signups = append(s.signups, req)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "User created"})
}

func (s *Server) forgotPasswordInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reference_id": "ref-" + req.PhoneNumber})
}

func (s *Server) forgotPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req network.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.PhoneNumber]
	if !ok || req.OTPCode != ValidOTP {
		writeDetail(w, http.StatusBadRequest, "Invalid OTP")
		return
	}
	acc.password = req.NewPassword
	s.accounts[req.PhoneNumber] = acc
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authorize(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.CurrentPassword != acc.password {
		writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}

	s.mu.Lock()
	acc.password = req.NewPassword
	s.accounts[acc.user.Phone] = acc
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	categories := s.categories
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %s", err))
		return
	}

	file, header, err := r.FormFile("chunk")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "chunk is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "unreadable chunk")
		return
	}

	index, indexErr := strconv.Atoi(r.FormValue("chunk_index"))
	total, totalErr := strconv.Atoi(r.FormValue("total_chunks"))
	if indexErr != nil || totalErr != nil || r.FormValue("upload_uuid") == "" || r.FormValue("filename") == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}

	s.mu.Lock()
	s.chunks = append(s.chunks, Chunk{
		UploadID:    r.FormValue("upload_uuid"),
		Filename:    r.FormValue("filename"),
		ContentType: header.Header.Get("Content-Type"),
		Index:       index,
		Total:       total,
		Data:        data,
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chunk uploaded"})
}

var requiredRecordFields = []string{
	"title", "category_id", "user_id", "media_type", "upload_uuid", "filename", "total_chunks",
	"release_rights", "language", "use_uid_filename",
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	for _, field := range requiredRecordFields {
		if r.PostForm.Get(field) == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"detail": []map[string]interface{}{{"loc": []string{"body", field}, "msg": "field required"}},
			})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uploadID := r.PostForm.Get("upload_uuid")
	if !s.hasChunk(uploadID) {
		writeDetail(w, http.StatusBadRequest, "No chunks found for upload "+uploadID)
		return
	}
	s.finalized = append(s.finalized, r.PostForm)
	writeJSON(w, http.StatusCreated, map[string]string{"uid": uploadID})
}

func (s *Server) hasChunk(uploadID string) bool {
	for _, chunk := range s.chunks {
		if chunk.UploadID == uploadID {
			return true
		}
	}
	return false
}

func (s *Server) listContributions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	s.mu.Lock()
	contributions, ok := s.contributions[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

func (s *Server) authorize(r *http.Request) (account, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return account{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	phone, ok := s.tokens[token]
	if !ok {
		return account{}, false
	}
	acc, ok := s.accounts[phone]
	return acc, ok
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return false
	}
	return true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func repeat(r Response, n int) []Response {
	responses := make([]Response, n)
	for i := range responses {
		responses[i] = r
	}
	return responses
}
