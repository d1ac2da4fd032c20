package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/dental-vision/internal/utils"
	"github.com/menta2k/dental-vision/pkg/analyzer"
	"github.com/menta2k/dental-vision/pkg/annotation"
	"github.com/menta2k/dental-vision/pkg/detection"
	"github.com/menta2k/dental-vision/pkg/processing"
	"github.com/menta2k/dental-vision/pkg/types"
)

// export kinds and the artifact label of exports that wrote everything
const (
	kindCrop       = "crop"
	kindAnnotation = "annotation"
	artifactNone   = "none"
)

type uploadResponse struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	BaseName  string `json:"base_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
}

type detectRequest struct {
	Task       string  `json:"task"`
	Confidence float64 `json:"confidence"`
}

type detectResponse struct {
	*types.DetectionResult
	AnnotatedImage string `json:"annotated_image"`
}

type annotationRequest struct {
	annotation.CropRegion
	Label string `json:"label"`
}

type exportResponse struct {
	LabelPath string `json:"label_path,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

type exportErrorResponse struct {
	Error     string `json:"error"`
	Artifact  string `json:"artifact"`
	Path      string `json:"path"`
	LabelPath string `json:"label_path,omitempty"`
}

func (s *Server) uploadImage(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.metrics.uploads.WithLabelValues(outcomeRejected).Inc()
		respondError(c, http.StatusBadRequest, "no file uploaded")
		return
	}

	if !utils.IsImageFile(header.Filename) {
		s.metrics.uploads.WithLabelValues(outcomeRejected).Inc()
		respondError(c, http.StatusUnsupportedMediaType, "not an image file: "+header.Filename)
		return
	}

	maxBytes := int64(s.cfg.Upload.MaxUploadMB) << 20
	if header.Size > maxBytes {
		s.metrics.uploads.WithLabelValues(outcomeRejected).Inc()
		respondError(c, http.StatusRequestEntityTooLarge, "file exceeds "+utils.FormatFileSize(maxBytes))
		return
	}

	baseName, err := annotation.BaseFilename(header.Filename)
	if err != nil {
		s.metrics.uploads.WithLabelValues(outcomeRejected).Inc()
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	file, err := header.Open()
	if err != nil {
		s.metrics.uploads.WithLabelValues(outcomeFailed).Inc()
		respondError(c, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer file.Close()

	upload, err := s.deps.Analyzer.LoadImageFromReader(io.LimitReader(file, maxBytes))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, analyzer.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		s.metrics.uploads.WithLabelValues(outcomeRejected).Inc()
		respondError(c, status, err.Error())
		return
	}

	sess := s.sessions.Create(header.Filename, baseName, upload)
	s.metrics.uploads.WithLabelValues(outcomeSuccess).Inc()
	s.log.Info("image uploaded",
		zap.String("session", sess.ID),
		zap.String("filename", header.Filename),
		zap.String("size", utils.FormatFileSize(header.Size)),
		zap.Int("width", upload.Info.Width),
		zap.Int("height", upload.Info.Height),
	)

	c.JSON(http.StatusCreated, uploadResponse{
		SessionID: sess.ID,
		Filename:  sess.Filename,
		BaseName:  sess.BaseName,
		Width:     upload.Info.Width,
		Height:    upload.Info.Height,
		Format:    upload.Info.Format,
	})
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.sessions.Delete(c.Param("id")) {
		respondError(c, http.StatusNotFound, "session not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) session(c *gin.Context) (*Session, bool) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

func (s *Server) detect(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if s.deps.Detector == nil {
		respondError(c, http.StatusServiceUnavailable, "no model backend configured")
		return
	}

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	task, err := types.ParseTask(req.Task)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Confidence == 0 {
		req.Confidence = s.cfg.Model.Confidence
	}

	result, err := s.deps.Detector.Detect(c.Request.Context(), sess.Upload.Image, detection.Options{
		Task:       task,
		Confidence: req.Confidence,
	})
	if err != nil {
		if errors.Is(err, detection.ErrInvalidConfidence) {
			s.metrics.detections.WithLabelValues(string(task), outcomeRejected).Inc()
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.detections.WithLabelValues(string(task), outcomeFailed).Inc()
		s.log.Error("detection failed", zap.String("session", sess.ID), zap.Error(err))
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	rendered := s.deps.Processor.RenderFindings(sess.Upload.Image, result)
	var buf bytes.Buffer
	if err := processing.EncodeImage(&buf, rendered, "jpg", 90, false); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to encode annotated image")
		return
	}

	s.metrics.detections.WithLabelValues(string(task), outcomeSuccess).Inc()
	c.JSON(http.StatusOK, detectResponse{
		DetectionResult: result,
		AnnotatedImage:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

// exportCrop handles "export cropped image only"
func (s *Server) exportCrop(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var region annotation.CropRegion
	if err := c.ShouldBindJSON(&region); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	cropped, err := annotation.CropImage(sess.Upload.Image, region)
	if err != nil {
		s.respondExportError(c, kindCrop, err, "")
		return
	}

	path, err := s.deps.Exporter.ExportCroppedImage(cropped, sess.BaseName)
	if err != nil {
		s.respondExportError(c, kindCrop, err, "")
		return
	}
	s.metrics.exports.WithLabelValues(kindCrop, artifactNone, outcomeSuccess).Inc()
	c.JSON(http.StatusCreated, exportResponse{ImagePath: path})
}

// exportAnnotation handles "export label + cropped image"
func (s *Server) exportAnnotation(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := annotation.ValidateLabel(req.Label); err != nil {
		s.respondExportError(c, kindAnnotation, err, "")
		return
	}
	cropped, err := annotation.CropImage(sess.Upload.Image, req.CropRegion)
	if err != nil {
		s.respondExportError(c, kindAnnotation, err, "")
		return
	}

	info := sess.Upload.Info
	labelPath, imagePath, err := s.deps.Exporter.ExportLabelAndImage(
		sess.BaseName, info.Width, info.Height, req.CropRegion, req.Label, cropped)
	if err != nil {
		s.respondExportError(c, kindAnnotation, err, labelPath)
		return
	}
	s.metrics.exports.WithLabelValues(kindAnnotation, artifactNone, outcomeSuccess).Inc()
	c.JSON(http.StatusCreated, exportResponse{LabelPath: labelPath, ImagePath: imagePath})
}

func (s *Server) respondExportError(c *gin.Context, kind string, err error, writtenLabel string) {
	var exportErr *annotation.ExportError
	if errors.As(err, &exportErr) {
		s.metrics.exports.WithLabelValues(kind, string(exportErr.Artifact), outcomeFailed).Inc()
	} else {
		s.metrics.exports.WithLabelValues(kind, artifactNone, outcomeRejected).Inc()
	}

	switch {
	case errors.Is(err, annotation.ErrEmptyLabel), errors.Is(err, annotation.ErrLabelLineBreak):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, annotation.ErrDegenerateRegion):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, annotation.ErrInvalidBaseName):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &exportErr):
		s.log.Error("export failed",
			zap.String("artifact", string(exportErr.Artifact)),
			zap.String("path", exportErr.Path),
			zap.Error(exportErr.Err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, exportErrorResponse{
			Error:     err.Error(),
			Artifact:  string(exportErr.Artifact),
			Path:      exportErr.Path,
			LabelPath: writtenLabel,
		})
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}
