package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sync/errgroup"

	"mirrorml/internal/config"
	"mirrorml/internal/handler"
	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
	"mirrorml/internal/service/ai"
	"mirrorml/internal/service/storage"
	"mirrorml/internal/service/transport"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	detector   ai.Detector
	classifier ai.Classifier
	acceptor   transport.Acceptor
	channel    *transport.Channel
	supervisor *Supervisor
	exporter   *metrics.Exporter

	detection      *handler.DetectionHandler
	classification *handler.ClassificationHandler
	relay          *handler.RelayHandler
}

// NewApp loads both models and opens the result listener.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	opts := ai.BackendOptions{
		Threads:   cfg.EdgeTPUThreads,
		InputSize: cfg.DNNInputSize,
	}

	detector, err := ai.NewDetector(cfg.DetectionModel, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection model %s: %w", cfg.DetectionModel, err)
	}

	classifier, err := ai.NewClassifier(cfg.RecognitionModel, opts)
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("failed to load recognition model %s: %w", cfg.RecognitionModel, err)
	}

	a, err := New(cfg, logger, detector, classifier)
	if err != nil {
		detector.Close()
		classifier.Close()
		return nil, err
	}
	return a, nil
}

// New wires an App around already loaded backends. The App owns them from here on.
func New(cfg *config.Config, logger *logger.Logger, detector ai.Detector, classifier ai.Classifier) (*App, error) {
	framer, err := transport.NewFramer(cfg.ResultFraming)
	if err != nil {
		return nil, err
	}

	acceptor, err := openAcceptor(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("listening for ML requests on %d ...", cfg.DetectionPort)

	channel := transport.NewChannel(acceptor, framer, logger)

	a := &App{
		config:     cfg,
		logger:     logger,
		detector:   detector,
		classifier: classifier,
		acceptor:   acceptor,
		channel:    channel,
		supervisor: NewSupervisor(cfg, logger),

		detection: handler.NewDetectionHandler(detector, channel, storage.NewFrameSaver(cfg.FullFramePath), logger, ai.DetectOptions{
			Threshold:       cfg.DetectionThreshold,
			KeepAspectRatio: true,
			RelativeCoord:   false,
			TopK:            cfg.DetectionTopK,
			Resample:        ai.ResampleBilinear,
		}),
		classification: handler.NewClassificationHandler(classifier, ai.NewLabelTable(cfg.Labels), channel, storage.NewFrameSaver(cfg.CropFramePath), logger, ai.ClassifyOptions{
			Threshold: cfg.ClassificationThreshold,
			TopK:      cfg.ClassificationTopK,
		}),
		relay: handler.NewRelayHandler(logger),
	}

	if cfg.MetricsAddr != "" {
		a.exporter = metrics.NewExporter(cfg.MetricsAddr)
	}

	return a, nil
}

func openAcceptor(cfg *config.Config) (transport.Acceptor, error) {
	addr := net.JoinHostPort(cfg.ResultHost, strconv.Itoa(cfg.ResultPort))

	switch cfg.ResultTransport {
	case config.TransportWebsocket:
		return transport.ListenWebsocket(addr, cfg.AcceptTimeout)
	case config.TransportTCP, "":
		return transport.ListenTCP(addr, cfg.AcceptTimeout)
	}
	return nil, fmt.Errorf("unknown result transport %q", cfg.ResultTransport)
}

// ResultAddr is the address the downstream consumer connects to.
func (a *App) ResultAddr() net.Addr {
	return a.acceptor.Addr()
}

// Run waits for the consumer, then serves the three listeners until ctx is
// cancelled or a loop gives up. Everything is closed when Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.logger.Info("waiting for client to connect...")
	if err := a.channel.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	// at this point, we know the processing client has opened the result stream
	a.logger.Info("processing client connected")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.supervisor.Run(gctx, a.detection.Name(), a.listen(a.config.DetectionPort, a.config.DetectionBufferSize, a.detection))
	})
	g.Go(func() error {
		return a.supervisor.Run(gctx, a.classification.Name(), a.listen(a.config.ClassificationPort, a.config.ClassificationBufferSize, a.classification))
	})
	g.Go(func() error {
		return a.supervisor.Run(gctx, a.relay.Name(), a.listen(a.config.LogPort, a.config.LogBufferSize, a.relay))
	})

	if a.exporter != nil {
		g.Go(func() error {
			a.logger.Info("serving metrics on %s", a.config.MetricsAddr)
			if err := a.exporter.Run(gctx); err != nil {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// listen binds a fresh UDP socket on every (re)start of a loop.
func (a *App) listen(port, bufferSize int, h handler.Handler) Loop {
	return func(ctx context.Context) error {
		addr := net.JoinHostPort(a.config.BindHost, strconv.Itoa(port))
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
		}

		a.logger.Info("listening on %d ...", port)
		return handler.Serve(ctx, conn, bufferSize, h, a.logger)
	}
}

// Close releases the result stream and both backends.
func (a *App) Close() error {
	var errs []error
	if err := a.channel.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	if err := a.detector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.classifier.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
