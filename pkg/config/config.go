package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"StockAction/pkg/util"
)

// Threshold is one inclusive lower bound of the severity table.
type Threshold struct {
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	Label     string  `yaml:"label" validate:"required"`
}

// MarketIndex describes where one market index series comes from.
type MarketIndex struct {
	Name      string `yaml:"name" validate:"required,alphanum"`
	Source    string `yaml:"source" default:"csv" validate:"oneof=csv provider"`
	Path      string `yaml:"path" validate:"required_if=Source csv"`
	Symbol    string `yaml:"symbol" validate:"required_if=Source provider"`
	HasVolume bool   `yaml:"has_volume"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stderr"`
	} `yaml:"log"`

	Labeling struct {
		Horizon    int         `yaml:"horizon" default:"30" validate:"gte=1"`
		Thresholds []Threshold `yaml:"thresholds" validate:"required,min=1,dive"`
	} `yaml:"labeling"`

	Features struct {
		Periods          []int    `yaml:"periods" validate:"required,min=1,dive,gte=1"`
		PeriodIndicators []string `yaml:"period_indicators" validate:"dive,required"`
		PlainIndicators  []string `yaml:"plain_indicators" validate:"dive,required"`
		IncludeVolume    *bool    `yaml:"include_volume"`
	} `yaml:"features"`

	Market struct {
		Indices     []MarketIndex `yaml:"indices" validate:"dive"`
		RefreshCron string        `yaml:"refresh_cron" default:"0 30 22 * * 1-5"`
	} `yaml:"market"`

	Provider struct {
		Type         string        `yaml:"type" default:"finnhub" validate:"oneof=finnhub local"`
		CallInterval time.Duration `yaml:"call_interval" default:"1s" validate:"gte=0"`
		Resolution   string        `yaml:"resolution" default:"D" validate:"oneof=D W M"`
		Finnhub      struct {
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
			Timeout time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"finnhub"`
		Local struct {
			Dir string `yaml:"dir" default:"data/candles"`
		} `yaml:"local"`
		Cache struct {
			Enabled bool          `yaml:"enabled"`
			Backend string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
			TTL     time.Duration `yaml:"ttl" default:"12h"`
		} `yaml:"cache"`
	} `yaml:"provider"`

	Dataset struct {
		Symbols       []string `yaml:"symbols" validate:"required,min=1,dive,required"`
		Start         string   `yaml:"start" default:"2011-12-31"`
		End           string   `yaml:"end" default:"2021-03-19"`
		MissingPolicy string   `yaml:"missing_policy" default:"mean" validate:"oneof=mean drop"`
		Sink          string   `yaml:"sink" default:"csv" validate:"oneof=csv clickhouse"`
		CSVPath       string   `yaml:"csv_path" default:"data/training.csv"`
		Table         string   `yaml:"table" default:"training_rows"`
		SkipFailed    bool     `yaml:"skip_failed"`
	} `yaml:"dataset"`

	Training struct {
		TestSize      float64 `yaml:"test_size" default:"0.25" validate:"gt=0,lt=1"`
		Seed          int64   `yaml:"seed" default:"42069"`
		Epochs        int     `yaml:"epochs" default:"200" validate:"gte=1"`
		BatchSize     int     `yaml:"batch_size" default:"64" validate:"gte=1"`
		EvalBatchSize int     `yaml:"eval_batch_size" default:"32" validate:"gte=1"`
		LearningRate  float64 `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
		HiddenLayers  []int   `yaml:"hidden_layers" validate:"dive,gte=1"`
		ModelDir      string  `yaml:"model_dir" default:"saved_model/samuel_900"`
	} `yaml:"training"`

	Classifier struct {
		Backend string `yaml:"backend" default:"local" validate:"oneof=local http"`
		HTTP    struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"5s"`
		} `yaml:"http"`
	} `yaml:"classifier"`

	Inference struct {
		LookbackDays  int `yaml:"lookback_days" default:"365" validate:"gte=1"`
		DaysSinceLast int `yaml:"days_since_last" validate:"gte=0"`
	} `yaml:"inference"`

	REPL struct {
		ExitToken string `yaml:"exit_token" default:"exit0" validate:"required"`
	} `yaml:"repl"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		CORS            *bool         `yaml:"cors"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"stockaction"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	} `yaml:"clickhouse"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"stockaction"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled          bool          `yaml:"enabled"`
		Brokers          []string      `yaml:"brokers"`
		PredictionsTopic string        `yaml:"predictions_topic" default:"stockaction.predictions"`
		LogsTopic        string        `yaml:"logs_topic" default:"stockaction.logs"`
		RequiredAcks     int           `yaml:"required_acks" default:"-1"`
		Compression      string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts      int           `yaml:"max_attempts" default:"3"`
		BatchSize        int           `yaml:"batch_size" default:"100" validate:"min=1"`
		BatchBytes       int           `yaml:"batch_bytes" default:"1048576" validate:"min=1"`
		BatchTimeout     time.Duration `yaml:"batch_timeout" default:"1s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		Async            bool          `yaml:"async"`
	} `yaml:"kafka"`

	Recorder struct {
		Type       string `yaml:"type" default:"noop" validate:"oneof=noop sqlite kafka"`
		SQLitePath string `yaml:"sqlite_path" default:"data/predictions.db"`
	} `yaml:"recorder"`
}

// SetDefaults fills list-valued settings that struct tags cannot express.
func (c *Config) SetDefaults() {
	if len(c.Labeling.Thresholds) == 0 {
		c.Labeling.Thresholds = []Threshold{
			{Threshold: 0.04, Label: "Fair"},
			{Threshold: 0.10, Label: "Moderate"},
			{Threshold: 0.16, Label: "Strong"},
		}
	}
	if len(c.Features.Periods) == 0 {
		c.Features.Periods = []int{10, 25, 50}
	}
	if c.Features.PeriodIndicators == nil {
		c.Features.PeriodIndicators = []string{
			"sma", "ema", "adx", "rsi", "cci", "wma", "dema", "tema", "trima",
			"kama", "t3", "willr", "adxr", "mom", "roc", "rocr", "aroon", "aroonosc",
			"mfi", "trix", "dx", "minusdi", "plusdi", "minusdm", "plusdm", "midprice",
			"atr", "natr",
		}
	}
	if c.Features.PlainIndicators == nil {
		c.Features.PlainIndicators = []string{
			"macd", "ad", "obv", "ultosc", "midpoint", "sar", "trange",
			"adosc", "httrendline", "httrendmode", "htdcperiod", "htdcphase",
		}
	}
	if c.Features.IncludeVolume == nil {
		v := true
		c.Features.IncludeVolume = &v
	}
	if len(c.Training.HiddenLayers) == 0 {
		c.Training.HiddenLayers = []int{116, 100, 80, 80, 90, 50}
	}
}

var validate = validator.New()

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Provider.Finnhub.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Dataset.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Training.ModelDir = v
	}
	if v := os.Getenv("DATASET_PATH"); v != "" {
		c.Dataset.CSVPath = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate runs struct-tag validation and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for i := 1; i < len(c.Labeling.Thresholds); i++ {
		prev, cur := c.Labeling.Thresholds[i-1], c.Labeling.Thresholds[i]
		if cur.Threshold <= prev.Threshold {
			return fmt.Errorf("labeling.thresholds must be strictly increasing: %v after %v", cur.Threshold, prev.Threshold)
		}
	}
	start, ok := util.ParseDate(c.Dataset.Start)
	if !ok {
		return fmt.Errorf("dataset.start is not a date: %q", c.Dataset.Start)
	}
	end, ok := util.ParseDate(c.Dataset.End)
	if !ok {
		return fmt.Errorf("dataset.end is not a date: %q", c.Dataset.End)
	}
	if !start.Before(end) {
		return fmt.Errorf("dataset.start must be before dataset.end")
	}
	if c.Provider.Type == "finnhub" && c.Provider.Finnhub.APIKey == "" {
		return fmt.Errorf("provider.finnhub.api_key is required")
	}
	if c.Classifier.Backend == "http" && c.Classifier.HTTP.URL == "" {
		return fmt.Errorf("classifier.http.url is required")
	}
	if (c.Kafka.Enabled || c.Recorder.Type == "kafka") && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Recorder.Type == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("recorder.type kafka requires kafka.enabled")
	}
	return nil
}

// DatasetWindow returns the parsed dataset date range.
func (c *Config) DatasetWindow() (time.Time, time.Time) {
	start, _ := util.ParseDate(c.Dataset.Start)
	end, _ := util.ParseDate(c.Dataset.End)
	return start, end
}

// CORSEnabled reports whether the API answers cross-origin requests; unset means yes.
func (c *Config) CORSEnabled() bool {
	return c.Server.CORS == nil || *c.Server.CORS
}

// VolumeEnabled reports whether the per-symbol volume column is part of the input features.
func (c *Config) VolumeEnabled() bool {
	return c.Features.IncludeVolume == nil || *c.Features.IncludeVolume
}
