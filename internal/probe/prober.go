package probe

import (
	"context"
	"net"
	"sync"
	"time"

	"servicemonitor/internal/models"
)

// Result 单次探测结果，每轮巡检现做现用，不跨轮缓存
type Result struct {
	Server models.Server
	Online bool
}

// Prober 端点探测器
type Prober struct {
	timeout time.Duration
}

// NewProber 创建探测器
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{timeout: timeout}
}

// Probe 探测单个端点是否可达。
// 连接失败（拒绝、超时、解析失败）一律视为离线，不作为错误上抛。
func (p *Prober) Probe(ctx context.Context, address, protocol string) bool {
	network := models.ProtocolTCP
	if protocol == models.ProtocolUDP {
		network = models.ProtocolUDP
	}

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ProbeAll 并发探测一组端点，阻塞到全部完成或超时。
// 结果顺序与输入顺序一致，与各探测的完成顺序无关。
func (p *Prober) ProbeAll(ctx context.Context, servers []models.Server) []Result {
	results := make([]Result, len(servers))

	var wg sync.WaitGroup
	for i, server := range servers {
		wg.Add(1)
		go func(i int, server models.Server) {
			defer wg.Done()
			results[i] = Result{
				Server: server,
				Online: p.Probe(ctx, server.Address, server.Protocol),
			}
		}(i, server)
	}
	wg.Wait()

	return results
}
