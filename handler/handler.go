package handler

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"movement-analysis/constant"
	"movement-analysis/dto"
	"movement-analysis/service"
	"net/http"
)

// Upload accepts a multipart video under the "file" field, analyzes it and
// replies with the stored names and keypoint samples. Failure details are
// logged and never sent to the client.
func Upload(svc service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		header, err := c.FormFile(constant.UploadField)
		if err != nil || header.Filename == "" {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("upload without file")
			c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Detail: constant.MessageMissingFile})
			return
		}

		file, err := header.Open()
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("original_name", header.Filename).Msg("failed to open multipart file")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: constant.MessageUploadFailed})
			return
		}
		defer file.Close()

		resp, err := svc.Upload(ctx, header.Filename, file)
		if err != nil {
			var analysisErr *service.AnalysisError
			if errors.As(err, &analysisErr) {
				zerolog.Ctx(ctx).Error().Err(err).Str("kind", analysisErr.Kind.String()).Msg("analysis failed")
				c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: constant.MessageAnalysisFailed})
				return
			}
			zerolog.Ctx(ctx).Error().Err(err).Msg("upload failed")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Detail: constant.MessageUploadFailed})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
