package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zagshelpzags/zagmarket/internal/imagestore"
	"github.com/zagshelpzags/zagmarket/internal/listing"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// ListingServiceInterface は出品ハンドラーが必要とするサービスインターフェース。
type ListingServiceInterface interface {
	Create(ctx context.Context, principal string, body map[string]any) (*model.Listing, error)
	List(ctx context.Context, q listing.ListQuery) (*model.ListingPage, error)
	Get(ctx context.Context, id string) (*model.Listing, error)
	ListByOwner(ctx context.Context, owner string) ([]*model.Listing, error)
	Update(ctx context.Context, principal, id string, body map[string]any) (*model.Listing, error)
	Delete(ctx context.Context, principal, id string) error
}

// ImageUploader は画像アップロードURLの発行インターフェース。
type ImageUploader interface {
	PresignUpload(ctx context.Context, principal, contentType string) (*imagestore.Upload, error)
}

// listingResponse は出品のJSONレスポンス表現。
type listingResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags"`
	Image          *string   `json:"image"`
	CreatedBy      string    `json:"createdBy"`
	CreatedByEmail *string   `json:"createdByEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	PostedAt       time.Time `json:"postedAt"`
}

func toListingResponse(l *model.Listing) listingResponse {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return listingResponse{
		ID:             l.ID,
		Title:          l.Title,
		Description:    l.Description,
		Tags:           tags,
		Image:          l.Image,
		CreatedBy:      l.CreatedBy,
		CreatedByEmail: l.CreatedByEmail,
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.UpdatedAt.UTC(),
		PostedAt:       l.PostedAt().UTC(),
	}
}

func toListingResponses(ls []*model.Listing) []listingResponse {
	out := make([]listingResponse, len(ls))
	for i, l := range ls {
		out[i] = toListingResponse(l)
	}
	return out
}

type paginationResponse struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Skip    int   `json:"skip"`
	HasMore bool  `json:"hasMore"`
}

type listingEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    listingResponse `json:"data"`
}

type listingsEnvelope struct {
	Success    bool                `json:"success"`
	Data       []listingResponse   `json:"data"`
	Pagination *paginationResponse `json:"pagination,omitempty"`
}

type messageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type imageUploadResponse struct {
	UploadURL   string            `json:"upload_url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Key         string            `json:"key"`
	ImageURL    string            `json:"image_url"`
	ContentType string            `json:"content_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// ListingHandler は出品のHTTPハンドラー。
type ListingHandler struct {
	service ListingServiceInterface
	images  ImageUploader
}

// NewListingHandler はListingHandlerを生成する。
// imagesがnilの場合、画像アップロードは提供しない。
func NewListingHandler(service ListingServiceInterface, images ImageUploader) *ListingHandler {
	return &ListingHandler{service: service, images: images}
}

// ListListings は出品一覧を返す。
// GET /api/listings?tags=a,b&hours=N&days=N&limit=N&skip=N
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	q, err := listing.ParseListQuery(r.URL.Query())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listingsEnvelope{
		Success: true,
		Data:    toListingResponses(page.Listings),
		Pagination: &paginationResponse{
			Total:   page.Total,
			Limit:   page.Limit,
			Skip:    page.Skip,
			HasMore: page.HasMore,
		},
	})
}

// GetListing は指定IDの出品を返す。
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingEnvelope{Success: true, Data: toListingResponse(l)})
}

// ListUserListings は指定ユーザーの出品を新しい順にすべて返す。
// GET /api/listings/user/{userId}
func (h *ListingHandler) ListUserListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListByOwner(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsEnvelope{Success: true, Data: toListingResponses(listings)})
}

// CreateListing は出品を作成する。作成者は認証済みプリンシパルに固定する。
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	sc, ok := requireSession(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	l, err := h.service.Create(r.Context(), sc.Principal, body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listingEnvelope{
		Success: true,
		Message: "Listing created successfully",
		Data:    toListingResponse(l),
	})
}

// UpdateListing は出品を部分更新する。所有者のみ可能。
// PUT /api/listings/{id}
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	sc, ok := requireSession(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	l, err := h.service.Update(r.Context(), sc.Principal, chi.URLParam(r, "id"), body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingEnvelope{
		Success: true,
		Message: "Listing updated successfully",
		Data:    toListingResponse(l),
	})
}

// DeleteListing は出品を削除する。所有者のみ可能。
// DELETE /api/listings/{id}
func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	sc, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), sc.Principal, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Success: true, Message: "Listing deleted successfully"})
}

// PresignImageUpload は画像アップロード用の署名付きURLを発行する。
// POST /api/listings/images  {"content_type": "image/png"}
func (h *ListingHandler) PresignImageUpload(w http.ResponseWriter, r *http.Request) {
	sc, ok := requireSession(w, r)
	if !ok {
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	contentType, _ := body["content_type"].(string)

	up, err := h.images.PresignUpload(r.Context(), sc.Principal, contentType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": imageUploadResponse{
			UploadURL:   up.UploadURL,
			Method:      up.Method,
			Headers:     up.Headers,
			Key:         up.Key,
			ImageURL:    up.ImageURL,
			ContentType: up.ContentType,
			ExpiresAt:   up.ExpiresAt,
		},
	})
}
