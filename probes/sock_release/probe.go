// Package probe attaches a kprobe to inet_release and streams one record per
// released IPv4 socket. Records are decoded by lb.DecodeReleaseEvent.
package probe

import (
	"fmt"

	bpf "github.com/iovisor/gobpf/bcc"
	log "github.com/sirupsen/logrus"
)

const source = `
#include <uapi/linux/ptrace.h>
#include <net/sock.h>
#include <net/inet_sock.h>

struct release_event {
    u32 type;
    u32 local_addr;
    u32 remote_addr;
    u16 local_port;
    u16 remote_port;
};

BPF_PERF_OUTPUT(release_events);

int trace_inet_release(struct pt_regs *ctx, struct socket *sock) {
    struct sock *sk = sock->sk;
    if (sk == NULL)
        return 0;
    if (sk->__sk_common.skc_family != AF_INET)
        return 0;

    struct release_event ev = {};
    ev.type = sk->sk_type;
    ev.local_addr = sk->__sk_common.skc_rcv_saddr;
    ev.local_port = sk->__sk_common.skc_num;
    ev.remote_addr = sk->__sk_common.skc_daddr;
    ev.remote_port = sk->__sk_common.skc_dport;
    release_events.perf_submit(ctx, &ev, sizeof(ev));
    return 0;
}
`

const (
	probeFunc   = "trace_inet_release"
	kernelFunc  = "inet_release"
	eventsTable = "release_events"
)

// SockReleaseProbe implements lb.ReleaseSource with bcc.
type SockReleaseProbe struct {
	Debug bool

	module  *bpf.Module
	perfMap *bpf.PerfMap
}

func New(debug bool) *SockReleaseProbe {
	return &SockReleaseProbe{Debug: debug}
}

// Start compiles and attaches the probe and returns the record channel.
func (p *SockReleaseProbe) Start() (<-chan []byte, error) {
	cflags := []string{"-w"}
	if p.Debug {
		cflags = append(cflags, "-DDEBUG=1")
	}

	log.Info("loading socket release probe.")
	p.module = bpf.NewModule(source, cflags)
	if p.module == nil {
		return nil, fmt.Errorf("failed to compile %s probe", kernelFunc)
	}

	fd, err := p.module.LoadKprobe(probeFunc)
	if err != nil {
		p.module.Close()
		return nil, fmt.Errorf("failed to load %s: %w", probeFunc, err)
	}
	if err := p.module.AttachKprobe(kernelFunc, fd, -1); err != nil {
		p.module.Close()
		return nil, fmt.Errorf("failed to attach kprobe to %s: %w", kernelFunc, err)
	}

	table := bpf.NewTable(p.module.TableId(eventsTable), p.module)
	channel := make(chan []byte, 1024)
	p.perfMap, err = bpf.InitPerfMap(table, channel, nil)
	if err != nil {
		p.module.Close()
		return nil, fmt.Errorf("failed to init perf map: %w", err)
	}
	p.perfMap.Start()
	log.Infof("attached kprobe %s to %s", probeFunc, kernelFunc)

	return channel, nil
}

func (p *SockReleaseProbe) Stop() {
	if p.perfMap != nil {
		log.Debugf("stopping perf map")
		p.perfMap.Stop()
		p.perfMap = nil
	}
	if p.module != nil {
		p.module.Close()
		p.module = nil
	}
}
