package pulseflow

import (
	runtimepkg "github.com/drblury/pulseflow/internal/runtime"
	chunkerpkg "github.com/drblury/pulseflow/internal/runtime/chunker"
	codecpkg "github.com/drblury/pulseflow/internal/runtime/codec"
	configpkg "github.com/drblury/pulseflow/internal/runtime/config"
	driverpkg "github.com/drblury/pulseflow/internal/runtime/driver"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	idspkg "github.com/drblury/pulseflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	lifecyclepkg "github.com/drblury/pulseflow/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/pulseflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/pulseflow/internal/runtime/metadata"
	recordspkg "github.com/drblury/pulseflow/internal/runtime/records"
	sinkpkg "github.com/drblury/pulseflow/internal/runtime/sink"
	sourcepkg "github.com/drblury/pulseflow/internal/runtime/source"
	timerpkg "github.com/drblury/pulseflow/internal/runtime/timer"
	transportpkg "github.com/drblury/pulseflow/internal/runtime/transport"
	newtransport "github.com/drblury/pulseflow/transport"
)

type (
	Config               = configpkg.Config
	SyntheticConfig      = configpkg.SyntheticConfig
	Streamer             = runtimepkg.Streamer
	StreamerDependencies = runtimepkg.StreamerDependencies
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	Frame               = recordspkg.Frame
	Message             = recordspkg.Message
	RunMetadata         = recordspkg.RunMetadata
	RunStop             = recordspkg.RunStop
	DetectorSpectrumMap = recordspkg.DetectorSpectrumMap
	SampleEnvLog        = recordspkg.SampleEnvLog
	Record              = recordspkg.Record
	RecordKind          = recordspkg.Kind
	Value               = recordspkg.Value

	Codec = codecpkg.Codec

	Source          = sourcepkg.Source
	MemorySource    = sourcepkg.Memory
	SyntheticSource = sourcepkg.Synthetic

	Sink             = sinkpkg.Sink
	SinkResult       = sinkpkg.Result
	SinkStatus       = sinkpkg.Status
	DestinationClass = sinkpkg.DestinationClass
	Topics           = sinkpkg.Topics
	Classifier       = sinkpkg.Classifier
	RetryingSink     = sinkpkg.RetryingSink
	RetryConfig      = sinkpkg.RetryConfig
	PublisherSink    = sinkpkg.PublisherSink

	Driver        = driverpkg.Driver
	DriverOptions = driverpkg.Options
	RunStatistics = driverpkg.RunStatistics
	Progress      = driverpkg.Progress
	ProgressFunc  = driverpkg.ProgressFunc
	Metrics       = driverpkg.Metrics
	RunHooks      = driverpkg.RunHooks
	RunContext    = driverpkg.RunContext
	RunTracker    = lifecyclepkg.Tracker
	Timer         = timerpkg.Timer
	MessageIDs    = idspkg.Sequence

	Metadata = metadatapkg.Metadata

	LogFields      = loggingpkg.LogFields
	ServiceLogger  = loggingpkg.ServiceLogger
	ZerologOptions = loggingpkg.ZerologOptions

	ConfigValidationError = errspkg.ConfigValidationError
	MalformedFrameError   = errspkg.MalformedFrameError
	SinkError             = errspkg.SinkError
	PublishError          = errspkg.PublishError

	// Modular transport types
	Transport             = newtransport.Transport
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewStreamer    = runtimepkg.NewStreamer
	TryNewStreamer = runtimepkg.TryNewStreamer
	BuildSource    = runtimepkg.BuildSource

	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewDriver         = driverpkg.New
	NewMetrics        = driverpkg.NewMetrics
	AlertingHooks     = driverpkg.AlertingHooks
	CountingHooks     = driverpkg.CountingHooks
	AuditHooks        = driverpkg.AuditHooks
	NewRetryingSink   = sinkpkg.NewRetryingSink
	NewPublisherSink  = sinkpkg.NewPublisherSink
	DefaultTopics     = sinkpkg.DefaultTopics
	DefaultClassifier = sinkpkg.DefaultClassifier

	ChunkFrame    = chunkerpkg.Chunk
	NewTimer      = timerpkg.New
	NewRunTracker = lifecyclepkg.New

	NewMemorySource    = sourcepkg.NewMemory
	NewSyntheticSource = sourcepkg.NewSynthetic
	LoadFrameFile      = sourcepkg.LoadFile

	CodecForName = codecpkg.ForName
	PeekSchema   = codecpkg.PeekSchema

	DefaultTransportFactory  = transportpkg.DefaultFactory
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrLoggerRequired          = errspkg.ErrLoggerRequired
	ErrSourceRequired          = errspkg.ErrSourceRequired
	ErrEmptySource             = errspkg.ErrEmptySource
	ErrSinkRequired            = errspkg.ErrSinkRequired
	ErrCodecRequired           = errspkg.ErrCodecRequired
	ErrPublisherRequired       = errspkg.ErrPublisherRequired
	ErrTopicRequired           = errspkg.ErrTopicRequired
	ErrInvalidMessagesPerFrame = errspkg.ErrInvalidMessagesPerFrame
	ErrFrameOutOfRange         = errspkg.ErrFrameOutOfRange
	ErrMalformedFrame          = errspkg.ErrMalformedFrame
	ErrBackpressure            = errspkg.ErrBackpressure
	ErrFatalSink               = errspkg.ErrFatalSink
	ErrMessageTooLarge         = errspkg.ErrMessageTooLarge
	ErrRunCancelled            = errspkg.ErrRunCancelled
	ErrRunAlreadyStarted       = errspkg.ErrRunAlreadyStarted
	ErrRunNotStarted           = errspkg.ErrRunNotStarted
	ErrRunAlreadyStopped       = errspkg.ErrRunAlreadyStopped
	ErrTimerStarted            = errspkg.ErrTimerStarted

	NewSlogServiceLogger    = loggingpkg.NewSlogServiceLogger
	NewZerolog              = loggingpkg.NewZerolog
	NewZerologServiceLogger = loggingpkg.NewZerologServiceLogger
	NopLogger               = loggingpkg.NopLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Destination classes a sink routes records to.
const (
	DestinationEvents     = sinkpkg.Events
	DestinationRunInfo    = sinkpkg.RunInfo
	DestinationSampleEnv  = sinkpkg.SampleEnv
	DestinationDetSpecMap = sinkpkg.DetSpecMap
	DestinationHistograms = sinkpkg.Histograms
)

// Payload schema identifiers.
const (
	SchemaEvents      = codecpkg.SchemaEvents
	SchemaRunStart    = codecpkg.SchemaRunStart
	SchemaRunStop     = codecpkg.SchemaRunStop
	SchemaSampleEnv   = codecpkg.SchemaSampleEnv
	SchemaSpectrumMap = codecpkg.SchemaSpectrumMap
)

// Metadata keys stamped on every published payload.
const (
	MetadataKeySchema     = metadatapkg.KeySchema
	MetadataKeyUUID       = metadatapkg.KeyUUID
	MetadataKeyRunNumber  = metadatapkg.KeyRunNumber
	MetadataKeyFrameIndex = metadatapkg.KeyFrameIndex
	MetadataKeyMessageID  = metadatapkg.KeyMessageID
	MetadataKeyCodec      = metadatapkg.KeyCodec
)

// BinaryCodec and JSONCodec are the bundled payload encodings.
var (
	BinaryCodec Codec = codecpkg.Binary{}
	JSONCodec   Codec = codecpkg.JSON{}
)
