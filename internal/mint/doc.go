// Package mint 实现语音资产的铸造流水线。
// 请求经幂等键去重后入库并进入队列,处理器按
// pending → uploading → submitted → confirmed/failed
// 的状态机推进:上传 metadata 到内容寻址存储、
// 广播链上交易、等待回执。终态不可变,失败不自动重试。
package mint
