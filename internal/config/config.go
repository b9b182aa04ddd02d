package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Model    ModelConfig    `mapstructure:"model"`
	Generate GenerateConfig `mapstructure:"generate"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	LogLevel string         `mapstructure:"log_level"`
}

type PathsConfig struct {
	CheckpointPath   string `mapstructure:"checkpoint_path"`
	FeaturesPath     string `mapstructure:"features_path"`
	TeacherAudioPath string `mapstructure:"teacher_audio_path"`
	OutputPath       string `mapstructure:"output_path"`
}

type ModelConfig struct {
	Classes          int64   `mapstructure:"classes"`
	ResidualChannels int64   `mapstructure:"residual_channels"`
	SkipChannels     int64   `mapstructure:"skip_channels"`
	HiddenChannels   int64   `mapstructure:"hidden_channels"`
	Blocks           int     `mapstructure:"blocks"`
	MaxDilation      int64   `mapstructure:"max_dilation"`
	UseSkip          bool    `mapstructure:"use_skip"`
	CondChannels     int64   `mapstructure:"cond_channels"`
	PerBlockCond     bool    `mapstructure:"per_block_cond"`
	DirectCond       bool    `mapstructure:"direct_cond"`
	CondSoftsign     bool    `mapstructure:"cond_softsign"`
	UpsampleWindow   int64   `mapstructure:"upsample_window"`
	UpsampleKernel   int64   `mapstructure:"upsample_kernel"`
	Gain             float64 `mapstructure:"gain"`
	ResDropout       float64 `mapstructure:"res_dropout"`
	HeadDropout      float64 `mapstructure:"head_dropout"`
	Softsign         bool    `mapstructure:"softsign"`
	ContinuousInput  bool    `mapstructure:"continuous_input"`
}

type GenerateConfig struct {
	Length           int64   `mapstructure:"length"`
	BatchSize        int64   `mapstructure:"batch_size"`
	Seed             int64   `mapstructure:"seed"`
	RandSampleChance float64 `mapstructure:"rand_sample_chance"`
	Sampler          string  `mapstructure:"sampler"`
	SampleRate       int     `mapstructure:"sample_rate"`
	FadeOutMs        float64 `mapstructure:"fade_out_ms"`
	Normalize        bool    `mapstructure:"normalize"`
}

type RuntimeConfig struct {
	ConvWorkers int `mapstructure:"conv_workers"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			CheckpointPath:   "models/wavenet.safetensors",
			FeaturesPath:     "",
			TeacherAudioPath: "",
			OutputPath:       "out.wav",
		},
		Model: ModelConfig{
			Classes:          256,
			ResidualChannels: 64,
			SkipChannels:     256,
			HiddenChannels:   256,
			Blocks:           16,
			MaxDilation:      128,
			UseSkip:          true,
			CondChannels:     80,
			PerBlockCond:     false,
			DirectCond:       false,
			CondSoftsign:     false,
			UpsampleWindow:   256,
			UpsampleKernel:   0,
			Gain:             1.0,
			ResDropout:       0,
			HeadDropout:      0,
			Softsign:         false,
			ContinuousInput:  false,
		},
		Generate: GenerateConfig{
			Length:           16000,
			BatchSize:        1,
			Seed:             0,
			RandSampleChance: 0,
			Sampler:          "categorical",
			SampleRate:       16000,
			FadeOutMs:        0,
			Normalize:        false,
		},
		Runtime: RuntimeConfig{
			ConvWorkers: 0,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-checkpoint-path", defaults.Paths.CheckpointPath, "Path to safetensors checkpoint")
	fs.String("paths-features-path", defaults.Paths.FeaturesPath, "Path to conditioning features (safetensors)")
	fs.String("paths-teacher-audio-path", defaults.Paths.TeacherAudioPath, "WAV whose samples seed the step inputs (teacher forcing)")
	fs.String("paths-output-path", defaults.Paths.OutputPath, "Output WAV path")
	fs.Int64("model-classes", defaults.Model.Classes, "Quantization classes")
	fs.Int64("model-residual-channels", defaults.Model.ResidualChannels, "Residual stream width")
	fs.Int64("model-skip-channels", defaults.Model.SkipChannels, "Skip sum width")
	fs.Int64("model-hidden-channels", defaults.Model.HiddenChannels, "Output head hidden width")
	fs.Int("model-blocks", defaults.Model.Blocks, "Residual block count")
	fs.Int64("model-max-dilation", defaults.Model.MaxDilation, "Dilation cap")
	fs.Bool("model-use-skip", defaults.Model.UseSkip, "Feed the head from the skip sum")
	fs.Int64("model-cond-channels", defaults.Model.CondChannels, "Conditioning feature channels (0 = unconditional)")
	fs.Bool("model-per-block-cond", defaults.Model.PerBlockCond, "Distinct conditioning per block")
	fs.Bool("model-direct-cond", defaults.Model.DirectCond, "Add conditioning without the 1x1 projection")
	fs.Bool("model-cond-softsign", defaults.Model.CondSoftsign, "Softsign after the conditioning projection")
	fs.Int64("model-upsample-window", defaults.Model.UpsampleWindow, "Samples per conditioning frame")
	fs.Int64("model-upsample-kernel", defaults.Model.UpsampleKernel, "Transposed-conv upsampler kernel (0 = repeat)")
	fs.Float64("model-gain", defaults.Model.Gain, "Residual rescale gain per block")
	fs.Float64("model-res-dropout", defaults.Model.ResDropout, "Residual stack dropout probability (training)")
	fs.Float64("model-head-dropout", defaults.Model.HeadDropout, "Output head dropout probability (training)")
	fs.Bool("model-softsign", defaults.Model.Softsign, "Softsign after the input layer")
	fs.Bool("model-continuous-input", defaults.Model.ContinuousInput, "1x1 conv input layer instead of the embedding table")
	fs.Int64("generate-length", defaults.Generate.Length, "Target sample count (unconditional)")
	fs.Int64("generate-batch-size", defaults.Generate.BatchSize, "Batch size (unconditional)")
	fs.Int64("generate-seed", defaults.Generate.Seed, "Sampling seed")
	fs.Float64("generate-rand-sample-chance", defaults.Generate.RandSampleChance, "Random input substitution probability")
	fs.String("generate-sampler", defaults.Generate.Sampler, "Sampler: categorical or greedy")
	fs.Int("generate-sample-rate", defaults.Generate.SampleRate, "Output WAV sample rate")
	fs.Float64("generate-fade-out-ms", defaults.Generate.FadeOutMs, "Linear fade-out duration in ms (0 = off)")
	fs.Bool("generate-normalize", defaults.Generate.Normalize, "Peak-normalize output")
	fs.Int("runtime-conv-workers", defaults.Runtime.ConvWorkers, "Convolution worker goroutines (<= 1 = sequential)")
	fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("WAVEGEN")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("wavegen")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.checkpoint_path", c.Paths.CheckpointPath)
	v.SetDefault("paths.features_path", c.Paths.FeaturesPath)
	v.SetDefault("paths.teacher_audio_path", c.Paths.TeacherAudioPath)
	v.SetDefault("paths.output_path", c.Paths.OutputPath)
	v.SetDefault("model.classes", c.Model.Classes)
	v.SetDefault("model.residual_channels", c.Model.ResidualChannels)
	v.SetDefault("model.skip_channels", c.Model.SkipChannels)
	v.SetDefault("model.hidden_channels", c.Model.HiddenChannels)
	v.SetDefault("model.blocks", c.Model.Blocks)
	v.SetDefault("model.max_dilation", c.Model.MaxDilation)
	v.SetDefault("model.use_skip", c.Model.UseSkip)
	v.SetDefault("model.cond_channels", c.Model.CondChannels)
	v.SetDefault("model.per_block_cond", c.Model.PerBlockCond)
	v.SetDefault("model.direct_cond", c.Model.DirectCond)
	v.SetDefault("model.cond_softsign", c.Model.CondSoftsign)
	v.SetDefault("model.upsample_window", c.Model.UpsampleWindow)
	v.SetDefault("model.upsample_kernel", c.Model.UpsampleKernel)
	v.SetDefault("model.gain", c.Model.Gain)
	v.SetDefault("model.res_dropout", c.Model.ResDropout)
	v.SetDefault("model.head_dropout", c.Model.HeadDropout)
	v.SetDefault("model.softsign", c.Model.Softsign)
	v.SetDefault("model.continuous_input", c.Model.ContinuousInput)
	v.SetDefault("generate.length", c.Generate.Length)
	v.SetDefault("generate.batch_size", c.Generate.BatchSize)
	v.SetDefault("generate.seed", c.Generate.Seed)
	v.SetDefault("generate.rand_sample_chance", c.Generate.RandSampleChance)
	v.SetDefault("generate.sampler", c.Generate.Sampler)
	v.SetDefault("generate.sample_rate", c.Generate.SampleRate)
	v.SetDefault("generate.fade_out_ms", c.Generate.FadeOutMs)
	v.SetDefault("generate.normalize", c.Generate.Normalize)
	v.SetDefault("runtime.conv_workers", c.Runtime.ConvWorkers)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.checkpoint_path", "paths-checkpoint-path")
	v.RegisterAlias("paths.features_path", "paths-features-path")
	v.RegisterAlias("paths.teacher_audio_path", "paths-teacher-audio-path")
	v.RegisterAlias("paths.output_path", "paths-output-path")
	v.RegisterAlias("model.classes", "model-classes")
	v.RegisterAlias("model.residual_channels", "model-residual-channels")
	v.RegisterAlias("model.skip_channels", "model-skip-channels")
	v.RegisterAlias("model.hidden_channels", "model-hidden-channels")
	v.RegisterAlias("model.blocks", "model-blocks")
	v.RegisterAlias("model.max_dilation", "model-max-dilation")
	v.RegisterAlias("model.use_skip", "model-use-skip")
	v.RegisterAlias("model.cond_channels", "model-cond-channels")
	v.RegisterAlias("model.per_block_cond", "model-per-block-cond")
	v.RegisterAlias("model.direct_cond", "model-direct-cond")
	v.RegisterAlias("model.cond_softsign", "model-cond-softsign")
	v.RegisterAlias("model.upsample_window", "model-upsample-window")
	v.RegisterAlias("model.upsample_kernel", "model-upsample-kernel")
	v.RegisterAlias("model.gain", "model-gain")
	v.RegisterAlias("model.res_dropout", "model-res-dropout")
	v.RegisterAlias("model.head_dropout", "model-head-dropout")
	v.RegisterAlias("model.softsign", "model-softsign")
	v.RegisterAlias("model.continuous_input", "model-continuous-input")
	v.RegisterAlias("generate.length", "generate-length")
	v.RegisterAlias("generate.batch_size", "generate-batch-size")
	v.RegisterAlias("generate.seed", "generate-seed")
	v.RegisterAlias("generate.rand_sample_chance", "generate-rand-sample-chance")
	v.RegisterAlias("generate.sampler", "generate-sampler")
	v.RegisterAlias("generate.sample_rate", "generate-sample-rate")
	v.RegisterAlias("generate.fade_out_ms", "generate-fade-out-ms")
	v.RegisterAlias("generate.normalize", "generate-normalize")
	v.RegisterAlias("runtime.conv_workers", "runtime-conv-workers")
	v.RegisterAlias("log_level", "log-level")
}

// Validate rejects model sections the engine cannot construct from.
func (c ModelConfig) Validate() error {
	if c.Classes < 2 {
		return fmt.Errorf("config: model.classes must be at least 2, got %d", c.Classes)
	}

	if c.Blocks <= 0 {
		return fmt.Errorf("config: model.blocks must be positive, got %d", c.Blocks)
	}

	if c.MaxDilation <= 0 {
		return fmt.Errorf("config: model.max_dilation must be positive, got %d", c.MaxDilation)
	}

	return nil
}
