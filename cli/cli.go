package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/mattn/go-isatty"

	"github.com/HuyNguyen260398/s3-sync-compress/api"
	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type command int

const (
	cmdRun command = iota
	cmdAPIServer
	cmdWatch
)

type argsParsed struct {
	args
	Command     command
	StorageType storage.Type
	FSFilePerm  os.FileMode
	FSDirPerm   os.FileMode
}

type runCmd struct{}

type apiServerCmd struct {
	Addr         string   `arg:"--addr,env:API_ADDR" help:"Listen address of the control API"`
	AllowOrigins []string `arg:"--api-allow-origin,separate" help:"Enable CORS for the origin, * allows any"`
}

type watchCmd struct {
	Interval time.Duration `arg:"--interval,env:WATCH_INTERVAL" help:"Poll interval of the request marker"`
}

type args struct {
	Run       *runCmd       `arg:"subcommand:run" help:"Perform one sync-compress-upload run (default)"`
	APIServer *apiServerCmd `arg:"subcommand:api-server" help:"Serve the trigger/health/status API"`
	Watch     *watchCmd     `arg:"subcommand:watch" help:"Run the pipeline every time the request marker appears"`
	// Source config
	SourceBucket string `arg:"--source-bucket,env:S3_BUCKET" help:"Source bucket"`
	SourcePrefix string `arg:"--source-prefix,env:S3_PREFIX" help:"Source key prefix"`
	// Target config
	TargetBucket string `arg:"--target-bucket,env:S3_OUTPUT_BUCKET" help:"Bucket receiving the archive"`
	TargetPrefix string `arg:"--target-prefix,env:S3_OUTPUT_PREFIX" help:"Key prefix of the archive"`
	// S3 config
	AccessKey     string        `arg:"--access-key,env:AWS_ACCESS_KEY_ID" help:"AWS key"`
	SecretKey     string        `arg:"--secret-key,env:AWS_SECRET_ACCESS_KEY" help:"AWS secret"`
	SessionToken  string        `arg:"--session-token,env:AWS_SESSION_TOKEN" help:"AWS session token"`
	Region        string        `arg:"--region,env:AWS_REGION" help:"AWS Region"`
	Endpoint      string        `arg:"--endpoint,env:S3_ENDPOINT" help:"AWS Endpoint"`
	STSEndpoint   string        `arg:"--sts-endpoint,env:STS_ENDPOINT" help:"STS Endpoint of the credential check, the region default if empty"`
	S3KeysPerReq  int64         `arg:"--s3-keys-per-req" help:"Max numbers of keys retrieved via List request"`
	VerifyTimeout time.Duration `arg:"--verify-timeout" help:"Timeout of the credential check"`
	// FS config
	StorageTypeName string `arg:"--storage-type,env:STORAGE_TYPE" help:"Storage backend. Possible values: s3, fs"`
	FSRoot          string `arg:"--fs-root,env:FS_ROOT" help:"Root dir of the fs backend, buckets are its sub-dirs"`
	FSFilePerm      string `arg:"--fs-file-perm" help:"File permissions"`
	FSDirPerm       string `arg:"--fs-dir-perm" help:"Dir permissions"`
	// Local dirs
	DataDir     string `arg:"--data-dir,env:DATA_DIR" help:"Local mirror of the source objects"`
	OutputDir   string `arg:"--output-dir,env:OUTPUT_DIR" help:"Dir of the archive and status file"`
	StatusFile  string `arg:"--status-file,env:STATUS_FILE" help:"Status file path (default: <output-dir>/status.json)"`
	TriggerFile string `arg:"--trigger-file,env:TRIGGER_FILE" help:"Request marker touched by the API and consumed by watch"`
	// Misc
	Debug              bool `arg:"-d" help:"Show debug logging"`
	ShowProgress       bool `arg:"--sync-progress,-p" help:"Show sync progress"`
	RateLimitBandwidth int  `arg:"--ratelimit-bandwidth" help:"Set bandwidth limit (bytes/sec)"`
	StatusKeepTotals   bool `arg:"--status-keep-totals" help:"Keep file counters in the uploading status instead of resetting them"`
}

//Version return program version string on human format
func (args) Version() string {
	return fmt.Sprintf("VersionId: %v, commit: %v, built at: %v", version, commit, date)
}

//Description return program description string
func (args) Description() string {
	return "Sync an S3 prefix, pack it into one zip and publish it with a download URL"
}

func defaultArgs() args {
	return args{
		SourceBucket:    "test-bucket",
		TargetPrefix:    "synced-files",
		Region:          "us-east-1",
		S3KeysPerReq:    1000,
		VerifyTimeout:   pipeline.DefaultVerifyTimeout,
		StorageTypeName: "s3",
		FSRoot:          ".",
		FSFilePerm:      "0644",
		FSDirPerm:       "0755",
		DataDir:         "/app/data",
		OutputDir:       "/app/output",
		TriggerFile:     api.DefaultTriggerFile,
	}
}

//GetCliArgs parse argv (without program name) and return cli args structure and error
func GetCliArgs(argv []string) (cli argsParsed, err error) {
	rawCli := defaultArgs()
	p, err := arg.NewParser(arg.Config{Program: "s3sync-compress"}, &rawCli)
	if err != nil {
		return cli, err
	}
	if err = p.Parse(argv); err != nil {
		switch {
		case errors.Is(err, arg.ErrHelp):
			p.WriteHelp(os.Stdout)
			os.Exit(0)
		case errors.Is(err, arg.ErrVersion):
			fmt.Println(rawCli.Version())
			os.Exit(0)
		}
		return cli, err
	}
	return parseArgs(rawCli)
}

func parseArgs(raw args) (cli argsParsed, err error) {
	cli.args = raw

	switch {
	case raw.APIServer != nil:
		cli.Command = cmdAPIServer
		if cli.APIServer.Addr == "" {
			cli.APIServer.Addr = api.DefaultAddr
		}
	case raw.Watch != nil:
		cli.Command = cmdWatch
		if cli.Watch.Interval <= 0 {
			cli.Watch.Interval = 5 * time.Second
		}
	default:
		cli.Command = cmdRun
	}

	switch raw.StorageTypeName {
	case "s3":
		cli.StorageType = storage.TypeS3
	case "fs":
		cli.StorageType = storage.TypeFS
	default:
		return cli, fmt.Errorf("--storage-type must be one of \"s3, fs\"")
	}

	if cli.StatusFile == "" {
		cli.StatusFile = filepath.Join(cli.OutputDir, "status.json")
	}
	if cli.ShowProgress && !isatty.IsTerminal(os.Stdout.Fd()) {
		return cli, fmt.Errorf("progress (--sync-progress) require tty")
	}

	if filePerm, err := strconv.ParseUint(raw.FSFilePerm, 8, 32); err != nil {
		return cli, fmt.Errorf("failed to parse arg --fs-file-perm")
	} else {
		cli.FSFilePerm = os.FileMode(filePerm)
	}

	if dirPerm, err := strconv.ParseUint(raw.FSDirPerm, 8, 32); err != nil {
		return cli, fmt.Errorf("failed to parse arg --fs-dir-perm")
	} else {
		cli.FSDirPerm = os.FileMode(dirPerm)
	}

	return cli, nil
}
