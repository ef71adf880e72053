package dto

import (
	"net/http"
	"strconv"
)

// WooCommerce REST error codes returned on the compatibility routes
const (
	WooCodeCannotView   = "woocommerce_rest_cannot_view"
	WooCodeCannotEdit   = "woocommerce_rest_cannot_edit"
	WooCodeInvalidID    = "woocommerce_rest_invalid_id"
	WooCodeInvalidParam = "woocommerce_rest_invalid_param"
	WooCodeInternal     = "woocommerce_rest_internal_error"
)

// WooUnauthorizedMessage is the single message for every rejected
// credential, whatever the cause.
const WooUnauthorizedMessage = "Sorry, you cannot list resources."

// Pagination headers set on compat list responses
const (
	HeaderTotal        = "X-Total"
	HeaderTotalPages   = "X-Total-Pages"
	HeaderWPTotal      = "X-WP-Total"
	HeaderWPTotalPages = "X-WP-TotalPages"
)

// WooError is the WooCommerce error envelope
type WooError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Data    WooErrorData `json:"data"`
}

// WooErrorData carries the HTTP status inside the envelope
type WooErrorData struct {
	Status int `json:"status"`
}

// NewWooError creates an envelope with status mirrored into data
func NewWooError(code, message string, status int) WooError {
	return WooError{Code: code, Message: message, Data: WooErrorData{Status: status}}
}

// WooUnauthorized is the uniform rejection body
func WooUnauthorized() WooError {
	return NewWooError(WooCodeCannotView, WooUnauthorizedMessage, http.StatusUnauthorized)
}

// WooForbidden is returned when a valid credential lacks write access
func WooForbidden() WooError {
	return NewWooError(WooCodeCannotEdit, "Sorry, you are not allowed to edit this resource.", http.StatusForbidden)
}

// WooNotFound is returned for unknown resource ids
func WooNotFound() WooError {
	return NewWooError(WooCodeInvalidID, "Invalid ID.", http.StatusNotFound)
}

// WooInvalidParam wraps a validation message
func WooInvalidParam(message string) WooError {
	return NewWooError(WooCodeInvalidParam, message, http.StatusBadRequest)
}

// SetPaginationHeaders writes both the plain and the WP-prefixed totals
func SetPaginationHeaders(h http.Header, total int64, perPage int) {
	totalStr := strconv.FormatInt(total, 10)
	pagesStr := strconv.Itoa(TotalPages(total, perPage))
	h.Set(HeaderTotal, totalStr)
	h.Set(HeaderTotalPages, pagesStr)
	h.Set(HeaderWPTotal, totalStr)
	h.Set(HeaderWPTotalPages, pagesStr)
}

// PageQuery is the WooCommerce paging query
type PageQuery struct {
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
	Search  string `form:"search" binding:"omitempty,max=200"`
	Status  string `form:"status" binding:"omitempty,max=32"`
}

// Normalize applies WooCommerce's defaults: page 1, 10 per page
func (q *PageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 10
	}
}
