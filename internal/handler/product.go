package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/middleware"
	"github.com/flicky/farm-market-api/internal/service"
)

type ProductService interface {
	Create(ctx context.Context, actor int64, req dto.CreateProductRequest, image *service.Upload) (*dto.ProductResponse, error)
	GetByID(ctx context.Context, id int64) (*dto.ProductResponse, error)
	List(ctx context.Context, q dto.ListProductsQuery) ([]dto.ProductResponse, error)
	Update(ctx context.Context, id, actor int64, req dto.UpdateProductRequest) (*dto.ProductResponse, error)
	Delete(ctx context.Context, id, actor int64) error
}

type ProductHandler struct {
	productService ProductService
}

func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// Create accepts multipart/form-data with an optional "image" file part.
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Missing required fields")
		return
	}

	var image *service.Upload
	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()
		image = &service.Upload{Filename: fh.Filename, Size: fh.Size, Body: f}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		badRequest(c, "invalid image upload")
		return
	}

	resp, err := h.productService.Create(c.Request.Context(), middleware.GetUserID(c), req, image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ProductHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "product")
	if !ok {
		return
	}
	resp, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) List(c *gin.Context) {
	var q dto.ListProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	resp, err := h.productService.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "product")
	if !ok {
		return
	}
	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	resp, err := h.productService.Update(c.Request.Context(), id, middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": resp})
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "product")
	if !ok {
		return
	}
	if err := h.productService.Delete(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Product deleted successfully"})
}
