package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nongbuhae/cropdoc/internal/api/auth"
	"github.com/nongbuhae/cropdoc/internal/api/v2/dto"
	"github.com/nongbuhae/cropdoc/internal/diagnosis"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Multipart field names used by the mobile client.
const (
	formFieldPlant = "plant"
	formFieldImage = "img"
)

func (c *Controller) initDiseaseRoutes() {
	g := c.Group.Group("/disease")

	g.GET("/about", c.GetDiseaseAbout)

	protected := g.Group("", c.authMiddleware)
	protected.POST("/diagnose", c.Diagnose)
	protected.GET("/diagnosis_records", c.GetDiagnosisRecords)
	protected.GET("/calendar_diagnosis_records", c.GetCalendarDiagnosisRecords)
	protected.DELETE("/delete_diagnosis", c.DeleteDiagnosis)
}

// Diagnose handles POST /api/v2/disease/diagnose
func (c *Controller) Diagnose(ctx echo.Context) error {
	plant := strings.TrimSpace(ctx.FormValue(formFieldPlant))
	if plant == "" {
		return c.HandleError(ctx, badRequest("form field %q is required", formFieldPlant))
	}
	fh, err := ctx.FormFile(formFieldImage)
	if err != nil {
		return c.HandleError(ctx, badRequest("form file %q is required", formFieldImage))
	}

	data, contentType, err := c.readImage(fh)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	res, err := c.Service.Diagnose(ctx.Request().Context(), diagnosis.Request{
		UserID:      auth.UserID(ctx),
		Crop:        plant,
		Filename:    fh.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewDiagnoseResponse(res, plant))
}

// readImage reads an uploaded file up to maxImageBytes. The declared
// content type wins; otherwise it is sniffed from the data.
func (c *Controller) readImage(fh *multipart.FileHeader) ([]byte, string, error) {
	if fh.Size > c.maxImageBytes {
		return nil, "", badRequest("image exceeds %d bytes", c.maxImageBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", badRequest("cannot read uploaded image")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, c.maxImageBytes+1))
	if err != nil {
		return nil, "", badRequest("cannot read uploaded image")
	}
	if int64(len(data)) > c.maxImageBytes {
		return nil, "", badRequest("image exceeds %d bytes", c.maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", badRequest("image is empty")
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// GetDiagnosisRecords handles GET /api/v2/disease/diagnosis_records
func (c *Controller) GetDiagnosisRecords(ctx echo.Context) error {
	order, err := diagnosis.ParseOrder(ctx.QueryParam("order"))
	if err != nil {
		return c.HandleError(ctx, err)
	}

	entries, err := c.Service.List(ctx.Request().Context(), auth.UserID(ctx), order)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dto.NewDiagnosisRecordList(entries, c.location, entryErrorMessage))
}

// GetCalendarDiagnosisRecords handles GET /api/v2/disease/calendar_diagnosis_records
func (c *Controller) GetCalendarDiagnosisRecords(ctx echo.Context) error {
	year, err := strconv.Atoi(ctx.QueryParam("year"))
	if err != nil {
		return c.HandleError(ctx, badRequest("year must be a number"))
	}
	month, err := strconv.Atoi(ctx.QueryParam("month"))
	if err != nil {
		return c.HandleError(ctx, badRequest("month must be a number"))
	}

	entries, err := c.Service.ListMonth(ctx.Request().Context(), auth.UserID(ctx), year, month)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dto.NewDiagnosisRecordList(entries, c.location, entryErrorMessage))
}

// DeleteDiagnosis handles DELETE /api/v2/disease/delete_diagnosis
func (c *Controller) DeleteDiagnosis(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.QueryParam("diagnosis_id"), 10, 64)
	if err != nil || id == 0 {
		return c.HandleError(ctx, badRequest("diagnosis_id must be a positive number"))
	}

	if err := c.Service.Delete(ctx.Request().Context(), auth.UserID(ctx), uint(id)); err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// GetDiseaseAbout handles GET /api/v2/disease/about
func (c *Controller) GetDiseaseAbout(ctx echo.Context) error {
	plant := strings.TrimSpace(ctx.QueryParam("plantName"))
	name := strings.TrimSpace(ctx.QueryParam("diseaseName"))

	d, err := c.Service.About(ctx.Request().Context(), plant, name)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, dto.NewAboutResponse(d, plant))
}

func badRequest(format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidInput}, args...)...)).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}
