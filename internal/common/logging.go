package common

// Structured log field names shared by every service. Each log event carries
// a category and an action alongside its free-form detail fields.
const (
	FieldCategory = "category"
	FieldAction   = "action"
)

// Log categories
const (
	CategoryQueue    = "queue"
	CategoryPipeline = "pipeline"
	CategoryScrape   = "scrape"
	CategoryAI       = "ai"
	CategoryDatabase = "database"
	CategoryWorker   = "worker"
	CategorySystem   = "system"
)

// Log actions
const (
	ActionEnqueue  = "enqueue"
	ActionDequeue  = "dequeue"
	ActionSpawn    = "spawn"
	ActionRequeue  = "requeue"
	ActionRetry    = "retry"
	ActionCancel   = "cancel"
	ActionDispatch = "dispatch"
	ActionStage    = "stage"
	ActionFilter   = "filter"
	ActionFetch    = "fetch"
	ActionProbe    = "probe"
	ActionDisable  = "disable"
	ActionRecover  = "recover"
	ActionRequest  = "request"
	ActionFallback = "fallback"
	ActionMigrate  = "migrate"
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionPoll     = "poll"
	ActionProcess  = "process"
	ActionPublish  = "publish"
	ActionReload   = "reload"
	ActionSchedule = "schedule"
)
