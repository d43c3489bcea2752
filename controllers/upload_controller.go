package controllers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creeps/board/services"
	"github.com/creeps/board/utils"
)

// UploadController accepts editor image uploads and forwards them to the media host.
type UploadController struct {
	media    services.MediaStore
	maxBytes int64
}

// NewUploadController creates an UploadController limited to maxMB megabytes per image.
func NewUploadController(media services.MediaStore, maxMB int) *UploadController {
	if maxMB <= 0 {
		maxMB = 5
	}
	return &UploadController{media: media, maxBytes: int64(maxMB) << 20}
}

// UploadImage validates size and format locally, then uploads under a fresh public id.
func (u *UploadController) UploadImage(ctx *gin.Context) {
	header, err := ctx.FormFile("image")
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "No image file was submitted.")
		return
	}
	tooLarge := fmt.Sprintf("Image must be %dMB or smaller.", u.maxBytes>>20)
	if header.Size > u.maxBytes {
		utils.Detail(ctx, http.StatusBadRequest, tooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, u.maxBytes+1))
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}
	if int64(len(data)) > u.maxBytes {
		utils.Detail(ctx, http.StatusBadRequest, tooLarge)
		return
	}
	if _, err := services.DetectImageFormat(data); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "Only JPEG, PNG, GIF and WEBP images are allowed.")
		return
	}

	publicID := services.NewPublicID(time.Now())
	res, err := u.media.Upload(ctx.Request.Context(), data, publicID)
	if err != nil || res == nil || res.URL == "" {
		utils.Sugar.Errorw("image upload failed", "public_id", publicID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "Image upload failed.")
		return
	}

	utils.JSON(ctx, http.StatusCreated, res)
}
