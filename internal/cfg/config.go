package cfg

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Symbol   string `mapstructure:"symbol" default:"BTCUSDT" validate:"required"`
	Interval string `mapstructure:"interval" default:"1h" validate:"required"`
	Market   string `mapstructure:"market" default:"spot" validate:"oneof=spot futures"`
	YearsAgo int    `mapstructure:"years_ago" default:"3" validate:"gte=1"`

	DataPath  string `mapstructure:"data_path" default:"data/*.csv"` // doublestar glob
	OutputDir string `mapstructure:"output_dir" default:"results" validate:"required"`
	StatePath string `mapstructure:"state_path" default:"results/state.json"`

	InitialCash float64 `mapstructure:"initial_cash" default:"100000" validate:"gt=0"`
	Commission  float64 `mapstructure:"commission" default:"0.001" validate:"gte=0,lt=1"`
	Strategy    string  `mapstructure:"strategy" default:"trend" validate:"oneof=crossover trend ma_cross ma_cross_trend"`
	RankBy      string  `mapstructure:"rank_by" default:"total_return" validate:"oneof=total_return final_value buy_hold_excess win_rate profit_factor"`
	Workers     int     `mapstructure:"workers" default:"1" validate:"gte=1,lte=64"`

	LogLevel  string `mapstructure:"log_level" default:"info"`
	LogFormat string `mapstructure:"log_format" default:"console" validate:"oneof=console json"`
	HTTPAddr  string `mapstructure:"http_addr" default:":8080"`

	BinanceBaseURL string        `mapstructure:"binance_base_url"`
	APIKey         string        `mapstructure:"api_key"` // optional, klines are public
	FetchPause     time.Duration `mapstructure:"fetch_pause" default:"1s"`
}

var validate = validator.New()

// Load builds the configuration: .env, struct defaults, optional config file,
// then environment variables (SYMBOL, INITIAL_CASH, ...). file may be empty.
func Load(file string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return Config{}, err
	}

	v := viper.New()
	seed(v, c)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	v.AutomaticEnv()

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid field by its config key.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("config %s: failed %s=%s (got %v)", keyOf(fe.StructField()), fe.Tag(), fe.Param(), fe.Value())
	}
	return err
}

// seed registers every key with its default so AutomaticEnv can see it in Unmarshal.
func seed(v *viper.Viper, c Config) {
	rv := reflect.ValueOf(c)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		v.SetDefault(key, rv.Field(i).Interface())
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
}

func keyOf(field string) string {
	if f, ok := reflect.TypeOf(Config{}).FieldByName(field); ok {
		if k := f.Tag.Get("mapstructure"); k != "" {
			return k
		}
	}
	return field
}
