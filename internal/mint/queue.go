package mint

import (
	"context"
)

// Handler 处理来自队列的铸造 ID。返回错误不会触发重投,
// 失败的铸造由存储层记为终态。
type Handler func(ctx context.Context, mintID string) error

// Producer 负责向队列投递铸造任务。
type Producer interface {
	Publish(ctx context.Context, mintID string) error
	Close() error
}

// Consumer 负责从队列中消费铸造任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
