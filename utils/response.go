package utils

import "github.com/gin-gonic/gin"

// FieldErrors maps a request field to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// JSON writes a resource body with the given status code.
func JSON(ctx *gin.Context, status int, body interface{}) {
	ctx.JSON(status, body)
}

// Detail writes a {"detail": msg} body, the shape used for every non-validation error.
func Detail(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, gin.H{"detail": msg})
}

// Invalid writes a 400 with per-field messages.
func Invalid(ctx *gin.Context, errs FieldErrors) {
	ctx.JSON(400, gin.H{"errors": errs})
}
