package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "adequa"

	// RankingModulePrefix 排名模块
	RankingModulePrefix = "ranking"
	// UploadModulePrefix 上传模块
	UploadModulePrefix = "upload"

	// EntityResult 排名结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyRankingResult 排名结果缓存 (STRING, JSON)
	// 格式: adequa:ranking:result:{indexID}:{jdHash}
	// 索引不可变，所以同一索引和同一JD的结果可以直接复用
	KeyRankingResult = AppPrefix + ":" + RankingModulePrefix + ":" + EntityResult + ":%s:%s"

	// KeyUploadLock 用户上传锁 (STRING)，保证上限检查和写入之间不被并发上传穿透
	// 格式: adequa:upload:lock:{userID}
	KeyUploadLock = AppPrefix + ":" + UploadModulePrefix + ":" + EntityLock + ":%s"
)
