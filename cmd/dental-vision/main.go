package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/dental-vision/internal/config"
	"github.com/menta2k/dental-vision/internal/logger"
	"github.com/menta2k/dental-vision/internal/server"
	"github.com/menta2k/dental-vision/internal/utils"
	"github.com/menta2k/dental-vision/pkg/analyzer"
	"github.com/menta2k/dental-vision/pkg/annotation"
	"github.com/menta2k/dental-vision/pkg/client"
	"github.com/menta2k/dental-vision/pkg/detection"
	"github.com/menta2k/dental-vision/pkg/llamacpp"
	"github.com/menta2k/dental-vision/pkg/ollama"
	"github.com/menta2k/dental-vision/pkg/processing"
	"github.com/menta2k/dental-vision/pkg/types"
)

const usage = `usage: %[1]s [serve] [-config file]
       %[1]s detect -in image.jpg|URL [-task detection|segmentation] [-conf 0.40] [-out dir]
       %[1]s annotate -in image.jpg -region left,top,right,bottom [-label text | -image-only] [-out dir]
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "detect":
		err = runDetect(args)
	case "annotate":
		err = runAnnotate(args)
	case "help":
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		return
	default:
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every command.
// Without -config the per-user config file is used when present.
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newVisionClient(cfg config.ModelConfig) (client.VisionClient, error) {
	switch cfg.Backend {
	case "ollama":
		return ollama.NewClient(cfg.URL)
	case "llamacpp":
		return llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", cfg.Backend)
	}
}

func newDetector(cfg *config.Config, log *zap.Logger) (*detection.Detector, error) {
	visionClient, err := newVisionClient(cfg.Model)
	if err != nil {
		return nil, err
	}
	dc := detection.DefaultConfig()
	dc.DetectionModel = cfg.Model.DetectionModel
	dc.SegmentationModel = cfg.Model.SegmentationModel
	dc.SendFormat = cfg.Model.SendFormat
	dc.SendSize = cfg.Model.SendSize
	dc.SendQuality = cfg.Model.SendQuality

	d := detection.NewDetector(visionClient, dc)
	d.SetLogger(log.Named("detection"))
	return d, nil
}

func newExporter(cfg *config.Config, log *zap.Logger) *annotation.Exporter {
	e := annotation.NewWithConfig(annotation.Config{
		OutputDir:   cfg.Output.OutputDir,
		ImageFormat: cfg.Output.ImageFormat,
		Quality:     cfg.Output.Quality,
	})
	e.SetLogger(log.Named("export"))
	return e
}

func newAnalyzer(cfg *config.Config) *analyzer.ImageAnalyzer {
	return analyzer.NewWithConfig(analyzer.Config{
		SupportedFormats: cfg.Upload.SupportedFormats,
		MinImageSize:     cfg.Upload.MinImageSize,
	})
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (json or yaml)")
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(args)

	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := server.Dependencies{
		Analyzer:  newAnalyzer(cfg),
		Exporter:  newExporter(cfg, log),
		Processor: processing.NewProcessor(),
		Logger:    log,
	}
	// The annotation workflow works without a model; detection then answers 503
	if deps.Detector, err = newDetector(cfg, log); err != nil {
		log.Warn("detection disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting dental vision",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Model.Backend),
		zap.String("output_dir", cfg.Output.OutputDir),
	)
	return server.New(cfg, deps).Run(ctx)
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (json or yaml)")
	in := fs.String("in", "", "input image path or URL (jpg/png/bmp/webp)")
	task := fs.String("task", "detection", "detection or segmentation")
	conf := fs.Float64("conf", 0, "confidence threshold (0.25..1.0, 0 = config default)")
	out := fs.String("out", "", "output directory (overrides config)")
	_ = fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("missing -in")
	}
	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()
	if *out != "" {
		cfg.Output.DetectDir = *out
	}

	t, err := types.ParseTask(*task)
	if err != nil {
		return err
	}
	if *conf == 0 {
		*conf = cfg.Model.Confidence
	}

	detector, err := newDetector(cfg, log)
	if err != nil {
		return err
	}
	processor := processing.NewProcessor()
	img, err := processor.LoadImageSmart(*in)
	if err != nil {
		return err
	}

	result, err := detector.Detect(context.Background(), img, detection.Options{Task: t, Confidence: *conf})
	if err != nil {
		return err
	}
	for _, f := range result.Findings {
		log.Info("finding",
			zap.String("label", f.Label),
			zap.Float64("confidence", f.Confidence),
			zap.Float64("x", f.Box.X), zap.Float64("y", f.Box.Y),
			zap.Float64("w", f.Box.W), zap.Float64("h", f.Box.H),
		)
	}
	log.Info("description", zap.String("text", result.Description))

	if err := utils.EnsureDir(cfg.Output.DetectDir); err != nil {
		return err
	}
	base, err := annotation.BaseFilename(*in)
	if err != nil {
		return err
	}

	rendered := processor.RenderFindings(img, result)
	renderedPath := filepath.Join(cfg.Output.DetectDir, fmt.Sprintf("%s_%s.jpg", base, t))
	if err := processor.SaveImage(rendered, renderedPath, "jpg", 92, false); err != nil {
		return fmt.Errorf("failed to save rendered image: %w", err)
	}
	log.Info("wrote", zap.String("path", renderedPath))

	// Save raw model JSON output
	js, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(cfg.Output.DetectDir, fmt.Sprintf("%s_%s.json", base, t))
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		return err
	}
	log.Info("wrote", zap.String("path", jsonPath))
	return nil
}

func runAnnotate(args []string) error {
	fs := flag.NewFlagSet("annotate", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (json or yaml)")
	in := fs.String("in", "", "input image path")
	regionFlag := fs.String("region", "", "crop region in pixels: left,top,right,bottom")
	label := fs.String("label", "", "class name written to the label file")
	imageOnly := fs.Bool("image-only", false, "export the cropped image without a label file")
	out := fs.String("out", "", "output directory (overrides config)")
	_ = fs.Parse(args)

	if *in == "" || *regionFlag == "" {
		return fmt.Errorf("missing -in or -region")
	}
	region, err := parseRegion(*regionFlag)
	if err != nil {
		return err
	}

	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()
	if *out != "" {
		cfg.Output.OutputDir = *out
	}

	base, err := annotation.BaseFilename(*in)
	if err != nil {
		return err
	}
	upload, err := newAnalyzer(cfg).LoadImage(*in)
	if err != nil {
		return err
	}
	if !*imageOnly {
		if _, err := annotation.ValidateLabel(*label); err != nil {
			return err
		}
	}

	cropped, err := annotation.CropImage(upload.Image, region)
	if err != nil {
		return err
	}
	exporter := newExporter(cfg, log)

	if *imageOnly {
		path, err := exporter.ExportCroppedImage(cropped, base)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}

	labelPath, imagePath, err := exporter.ExportLabelAndImage(base, upload.Info.Width, upload.Info.Height, region, *label, cropped)
	if err != nil {
		var exportErr *annotation.ExportError
		if errors.As(err, &exportErr) && labelPath != "" {
			fmt.Fprintln(os.Stderr, "label written:", labelPath)
		}
		return err
	}
	fmt.Println(labelPath)
	fmt.Println(imagePath)
	return nil
}

// parseRegion parses "left,top,right,bottom"
func parseRegion(s string) (annotation.CropRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return annotation.CropRegion{}, fmt.Errorf("region %q: want left,top,right,bottom", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return annotation.CropRegion{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return annotation.CropRegion{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}
