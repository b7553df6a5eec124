package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// ATSModulePrefix 评分模块
	ATSModulePrefix = "ats"

	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityEmbeddings 分块向量实体
	EntityEmbeddings = "embeddings"

	// KeyJobDescriptionEmbeddings JD分块向量缓存 (STRING, JSON)
	// 格式: app:job:embeddings:{jobID}:{contentMD5}
	KeyJobDescriptionEmbeddings = AppPrefix + ":" + JobModulePrefix + ":" + EntityEmbeddings + ":%s"

	// KeyApplicationLock 申请评分锁 (STRING)
	// 格式: app:ats:lock:{applicationID}
	KeyApplicationLock = AppPrefix + ":" + ATSModulePrefix + ":" + EntityLock + ":%s"
)
