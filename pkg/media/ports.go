package media

import (
	"fmt"
	"sync"
)

// PortRange диапазон UDP портов для RTP
type PortRange struct {
	Min int
	Max int
}

// PortAllocator выделяет четные порты RTP (следующий нечетный
// резервируется под RTCP). Общий для всех вызовов конечной точки.
type PortAllocator struct {
	portRange PortRange
	usedPorts map[int]bool
	mutex     sync.Mutex
	nextPort  int
}

// NewPortAllocator создает распределитель портов
func NewPortAllocator(portRange PortRange) (*PortAllocator, error) {
	if portRange.Min <= 0 || portRange.Max <= 0 || portRange.Max > 65535 {
		return nil, fmt.Errorf("некорректный диапазон портов: %d-%d", portRange.Min, portRange.Max)
	}
	if portRange.Min%2 != 0 {
		portRange.Min++
	}
	if portRange.Min >= portRange.Max {
		return nil, fmt.Errorf("минимальный порт должен быть меньше максимального: %d >= %d", portRange.Min, portRange.Max)
	}
	return &PortAllocator{
		portRange: portRange,
		usedPorts: make(map[int]bool),
		nextPort:  portRange.Min,
	}, nil
}

// Allocate выделяет свободный четный порт
func (pa *PortAllocator) Allocate() (int, error) {
	pa.mutex.Lock()
	defer pa.mutex.Unlock()

	start := pa.nextPort
	for {
		port := pa.nextPort
		pa.advance()
		if !pa.usedPorts[port] {
			pa.usedPorts[port] = true
			return port, nil
		}
		if pa.nextPort == start {
			return 0, fmt.Errorf("все порты в диапазоне %d-%d заняты", pa.portRange.Min, pa.portRange.Max)
		}
	}
}

func (pa *PortAllocator) advance() {
	pa.nextPort += 2
	if pa.nextPort+1 > pa.portRange.Max {
		pa.nextPort = pa.portRange.Min
	}
}

// Release освобождает порт
func (pa *PortAllocator) Release(port int) {
	pa.mutex.Lock()
	defer pa.mutex.Unlock()
	delete(pa.usedPorts, port)
}

// InUse количество занятых портов
func (pa *PortAllocator) InUse() int {
	pa.mutex.Lock()
	defer pa.mutex.Unlock()
	return len(pa.usedPorts)
}
