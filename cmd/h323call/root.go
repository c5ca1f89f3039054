package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arzzra/h323phone/pkg/call"
	"github.com/arzzra/h323phone/pkg/gatekeeper"
	"github.com/arzzra/h323phone/pkg/media"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "h323call",
	Short: "h323call - терминал H.323",
	Long: `h323call принимает и совершает вызовы H.323: быстрый старт,
туннелирование H.245, выделенный канал управления и RTP медиа.`,
	SilenceUsage: true,
}

// Execute запускает дерево команд
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// rtpConfig раздел rtp конфигурации
type rtpConfig struct {
	Interface string `mapstructure:"interface"`
	DSCP      int    `mapstructure:"dscp"`
	PortMin   int    `mapstructure:"port_min"`
	PortMax   int    `mapstructure:"port_max"`
	// Secure выполнять рукопожатие DTLS-PSK после согласования ключа
	Secure bool `mapstructure:"secure"`
}

// gatekeeperConfig раздел gatekeeper конфигурации
type gatekeeperConfig struct {
	Routes         map[string]string `mapstructure:"routes"`
	StrictRoutes   bool              `mapstructure:"strict_routes"`
	TotalBandwidth uint              `mapstructure:"total_bandwidth"`
	Denied         []string          `mapstructure:"denied"`
}

func (g gatekeeperConfig) static() gatekeeper.StaticConfig {
	return gatekeeper.StaticConfig{
		Routes:         g.Routes,
		StrictRoutes:   g.StrictRoutes,
		TotalBandwidth: g.TotalBandwidth,
		Denied:         g.Denied,
	}
}

// tlsConfig раздел tls конфигурации. Пустые пути отключают TLS.
type tlsConfig struct {
	Cert     string `mapstructure:"cert"`
	Key      string `mapstructure:"key"`
	Insecure bool   `mapstructure:"insecure"`
}

// appConfig полная конфигурация терминала
type appConfig struct {
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	Listen      string `mapstructure:"listen"`
	// CapsSDP файл SDP, из которого строится список форматов
	CapsSDP string `mapstructure:"caps_sdp"`

	Call       call.Config      `mapstructure:"call"`
	RTP        rtpConfig        `mapstructure:"rtp"`
	Gatekeeper gatekeeperConfig `mapstructure:"gatekeeper"`
	TLS        tlsConfig        `mapstructure:"tls"`
}

func defaultAppConfig() appConfig {
	rtp := media.DefaultRTPConfig()
	return appConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Listen:    ":" + call.DefaultSignalPort,
		Call:      call.DefaultConfig(),
		RTP: rtpConfig{
			Interface: rtp.LocalInterface,
			DSCP:      rtp.DSCP,
			PortMin:   10000,
			PortMax:   20000,
		},
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "файл конфигурации (по умолчанию $HOME/.h323call.yaml)")
	flags.String("log-level", "info", "уровень журнала: debug, info, warn, error")
	flags.String("log-format", "text", "формат журнала: text или json")
	flags.String("metrics-addr", "", "адрес HTTP для /metrics, пустой отключает")
	flags.String("caps-sdp", "", "SDP файл со списком кодеков")
	flags.String("alias", call.DefaultConfig().LocalAlias, "локальный псевдоним")

	bindFlag(rootCmd, "log_level", "log-level")
	bindFlag(rootCmd, "log_format", "log-format")
	bindFlag(rootCmd, "metrics_addr", "metrics-addr")
	bindFlag(rootCmd, "caps_sdp", "caps-sdp")
	bindFlag(rootCmd, "call.local_alias", "alias")

	rootCmd.AddCommand(listenCmd, callCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".h323call")
	}

	viper.SetEnvPrefix("H323")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig накладывает файл, окружение и флаги на значения по умолчанию
func loadConfig() (*appConfig, error) {
	cfg := defaultAppConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации: %w", err)
	}
	if err := applyCapsSDP(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Call.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlag связывает ключ конфигурации с флагом команды
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		flag = cmd.Flags().Lookup(name)
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// newLogger устанавливает журнал процесса по настройкам
func newLogger(cfg *appConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("уровень журнала %q: %w", cfg.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("неизвестный формат журнала %q", cfg.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
