// Command rr-dump prints DNS messages in a dig-like layout.
//
// With a file argument it decodes a captured packet:
//
//	rr-dump response.bin
//
// With -server it sends one query and prints the reply:
//
//	rr-dump -server 198.41.0.4:53 -type NS example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/net/idna"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
	"github.com/haukened/rr-recursor/internal/dns/gateways/upstream"
	"github.com/haukened/rr-recursor/internal/dns/gateways/wire"
)

const appName = "rr-dump"

// nameProfile folds names to ASCII like idna.Lookup but without the STD3
// host name rules, so service labels such as _dmarc or _sip stay queryable.
var nameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(true),
	idna.StrictDomainName(false),
	idna.VerifyDNSLength(true),
)

var errUsage = errors.New("usage: rr-dump <packet-file> | rr-dump -server ip:port [-type A] <name>")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", "", "query this ip:port instead of reading a file")
	qtype := fs.String("type", "A", "query type for -server mode")
	timeout := fs.Duration("timeout", 5*time.Second, "exchange timeout for -server mode")
	debug := fs.Bool("debug", false, "log the exchange")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, errUsage)
		return 2
	}

	logger := log.NewNoopLogger()
	if *debug {
		if err := log.Configure("dev", "debug"); err != nil {
			fmt.Fprintf(stderr, "Logging configuration error: %v\n", err)
			return 1
		}
		logger = log.GetLogger()
	}

	var (
		p   domain.Packet
		err error
	)
	if *server == "" {
		p, err = dumpFile(fs.Arg(0))
	} else {
		p, err = query(context.Background(), *server, fs.Arg(0), *qtype, *timeout, logger)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}

	printPacket(stdout, p)
	return 0
}

func dumpFile(path string) (domain.Packet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Packet{}, err
	}
	p, err := wire.DecodePacket(data)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, nil
}

func query(ctx context.Context, server, name, qtype string, timeout time.Duration, logger log.Logger) (domain.Packet, error) {
	t, err := domain.ParseQueryType(qtype)
	if err != nil {
		return domain.Packet{}, err
	}
	ascii, err := nameProfile.ToASCII(name)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("invalid name %q: %w", name, err)
	}

	client, err := upstream.NewClient(upstream.Options{
		Timeout: timeout,
		Codec:   wire.NewUDPCodec(logger),
		Logger:  logger,
	})
	if err != nil {
		return domain.Packet{}, err
	}
	return client.Lookup(ctx, ascii, t, server)
}

func printPacket(w io.Writer, p domain.Packet) {
	fmt.Fprintf(w, ";; ->>HEADER<<- %s\n", p.Header)

	fmt.Fprintln(w, "\n;; QUESTION SECTION:")
	for _, q := range p.Questions {
		fmt.Fprintf(w, ";%s\n", q)
	}

	for _, s := range []struct {
		title   string
		records []domain.Record
	}{
		{"ANSWER", p.Answers},
		{"AUTHORITY", p.Authorities},
		{"ADDITIONAL", p.Resources},
	} {
		if len(s.records) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n;; %s SECTION:\n", s.title)
		for _, rr := range s.records {
			fmt.Fprintln(w, rr)
		}
	}
}
