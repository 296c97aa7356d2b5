// Command ebusd is the eBUS field-bus daemon: it owns one Device, runs
// the L3 protocol engine against it, and serves active/poll/passive
// requests out of a catalog loaded from a directory of CSV files.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/ebusd-go/ebusd/catalog"
	"github.com/ebusd-go/ebusd/device"
	"github.com/ebusd-go/ebusd/dispatcher"
	"github.com/ebusd-go/ebusd/protocol"
	"github.com/ebusd-go/ebusd/store"
	"github.com/ebusd-go/ebusd/symbol"
	"github.com/ebusd-go/ebusd/transport"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	deviceAddr = flag.String("device", "/dev/ttyUSB0", "Serial device path, or host:port for a TCP gateway")
	enhanced   = flag.Bool("enhanced", false, "Device speaks the enhanced (adapter-framed) protocol")
	baudRate   = flag.Int("baud", 2400, "Serial baud rate")
	ownAddr    = flag.String("address", "0x31", "This daemon's own master address, as a hex byte (e.g. 0x31)")

	csvDir = flag.String("configdir", "", "Directory of CSV catalog files to load")

	promPort    = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	pollEvery   = flag.Duration("poll-interval", 5*time.Second, "Minimum interval between two polls of the same message")
	dumpFile    = flag.String("dumpfile", "", "Path to append raw wire bytes to, empty disables dumping")
	dumpMaxSize = flag.Int64("dumpsize", 100*1024*1024, "Rotate the dump file once it exceeds this many bytes")
	logFile     = flag.String("logfile", "", "Path to append text telegram log lines to, empty disables text logging")
)

func parseOwnAddress(s string) (symbol.Symbol, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return symbol.Symbol(v), nil
}

func openTransport() transport.Transport {
	if strings.Contains(*deviceAddr, ":") {
		return transport.NewTCPTransport(transport.NetworkConfig{Addr: *deviceAddr})
	}
	return transport.NewSerialTransport(transport.SerialConfig{Device: *deviceAddr, BaudRate: *baudRate})
}

func openDevice(t transport.Transport) device.Device {
	if *enhanced {
		return device.NewEnhancedDevice(t)
	}
	return device.NewPlainDevice(t)
}

// loadCatalog reads every *.csv file directly under dir (file discovery
// and recursive !load instructions are out of scope, spec.md §9) and
// registers the messages and conditions it finds.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	cat := catalog.NewCatalog()
	if dir == "" {
		return cat, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		msgs, conditions, err := catalog.LoadCSV(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			cat.Add(m)
		}
		for name, cond := range conditions {
			if err := cat.AddCondition(name, cond); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

// observedSink fans every telegram the engine sees out to the raw dump
// file and the text telegram log before handing it to the dispatcher,
// so dump/log output reflects exactly what the dispatcher acted on.
type observedSink struct {
	disp    *dispatcher.Dispatcher
	dump    *store.RotatingFile
	textLog *store.TelegramLogger
}

func (o *observedSink) Observed(master *symbol.MasterSymbols, slave *symbol.SlaveSymbols, self bool) {
	dir := byte(store.DirReceived)
	if self {
		dir = store.DirSent
	}
	if o.dump != nil {
		o.dump.Write(master.Bytes())
		if slave != nil {
			o.dump.Write(slave.Bytes())
		}
	}
	if o.textLog != nil {
		o.textLog.Master(dir, master)
		if slave != nil {
			o.textLog.Slave(dir, slave)
		}
	}
	o.disp.Observed(master, slave, self)
}

// statusLogger is the StatusListener wired into the dispatcher: it logs
// each occurrence the way the original daemon logs its own address
// conflicts and protocol errors (once per occurrence, not once per
// symbol), per spec.md §7.
type statusLogger struct{}

func (statusLogger) OnAddressConflict(addr symbol.Symbol) {
	log.Printf("address conflict: another device answered on %s", addr)
}

func (statusLogger) OnError(kind protocol.ErrorKind) {
	log.Printf("protocol error: %s", kind)
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	own, err := parseOwnAddress(*ownAddr)
	rtx.Must(err, "Could not parse -address %q", *ownAddr)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		cancel()
	}()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	cat, err := loadCatalog(*csvDir)
	rtx.Must(err, "Could not load catalog from %q", *csvDir)

	t := openTransport()
	rtx.Must(t.Open(), "Could not open transport %q", *deviceAddr)
	defer t.Close()
	dev := openDevice(t)
	rtx.Must(dev.Open(), "Could not open device")
	defer dev.Close()

	disp := dispatcher.New(cat, *pollEvery)
	disp.SetStatusListener(statusLogger{})
	disp.SetOwnAddress(own, symbol.SlaveOf(own))
	for _, m := range cat.All() {
		disp.RegisterPollable(m)
	}

	sink := &observedSink{disp: disp}
	if *dumpFile != "" {
		rf, err := store.NewRotatingFile(*dumpFile, *dumpMaxSize, 1)
		rtx.Must(err, "Could not open dump file %q", *dumpFile)
		defer rf.Close()
		sink.dump = rf
	}
	if *logFile != "" {
		rf, err := store.NewRotatingFile(*logFile, *dumpMaxSize, 1)
		rtx.Must(err, "Could not open log file %q", *logFile)
		defer rf.Close()
		sink.textLog = store.NewTelegramLogger(rf)
	}

	cfg := protocol.DefaultConfig()
	bus := protocol.NewBusLoop(dev, own, cfg)

	log.Printf("ebusd starting: device=%s address=%s", *deviceAddr, own)
	err = bus.Run(ctx, disp.Pop, sink, disp, disp.Complete)
	if err != nil && ctx.Err() == nil {
		log.Printf("bus loop exited: %v", err)
	}
}
