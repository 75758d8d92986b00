package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting         string
	ConfigLoaded     string
	ConfigLoadFailed string
	ConfigInvalid    string
	UsingDBPath      string
	ServerListening  string
	APIServerError   string
	ShuttingDown     string
	DemoMode         string
	LiveModeWarning  string
	DryRunMode       string

	// Broker
	BrokerConnected     string
	BrokerConnectFailed string
	TradeExecuting      string
	TradeFailed         string
	SettleFailed        string

	// Market
	PriceFetchFailed string
	MockFeedStarted  string
	TickFeedStarted  string

	// Strategy
	StrategyConfigLoaded     string
	StrategyConfigLoadFailed string
	SignalEmitted            string

	// Risk
	ThresholdAdjusted string
	StakeReduced      string

	// Session
	SessionStarted    string
	SessionStopped    string
	CyclePanic        string
	PriceFeedLost     string
	TradeResult       string
	PeriodicSummary   string
	FinalReport       string
	ProfitTargetHit   string
	LossLimitHit      string
	MaxTradesHit      string
	ManualStop        string
	RecommendRaise    string
	RecommendReduce   string
	RecommendWorking  string
	RecommendIncrease string

	// Journal
	JournalEnabled     string
	JournalWriteFailed string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:         "Starting mean-reversion trading core...",
	ConfigLoaded:     "Config loaded (symbol: %s, max trades: %d)",
	ConfigLoadFailed: "Failed to load config: %v",
	ConfigInvalid:    "Invalid session configuration: %v",
	UsingDBPath:      "Using DB path: %s",
	ServerListening:  "Reporting API listening on :%s",
	APIServerError:   "API server error: %v",
	ShuttingDown:     "Shutting down gracefully...",
	DemoMode:         "Using DEMO account (virtual money)",
	LiveModeWarning:  "Using LIVE account - REAL MONEY!",
	DryRunMode:       "Running in DRY-RUN mode (trades are simulated, nothing hits the broker)",

	// Broker
	BrokerConnected:     "Connected! Balance: %.2f",
	BrokerConnectFailed: "Cannot connect to broker: %v",
	TradeExecuting:      "Executing %s trade with %.2f",
	TradeFailed:         "Trade request failed: %v",
	SettleFailed:        "Trade settlement failed: %v",

	// Market
	PriceFetchFailed: "Price fetch failed, cycle skipped: %v",
	MockFeedStarted:  "Synthetic price feed started at %.2f",
	TickFeedStarted:  "Tick stream subscribed: %s",

	// Strategy
	StrategyConfigLoaded:     "Strategy parameters loaded from %s",
	StrategyConfigLoadFailed: "Failed to load strategy parameters: %v",
	SignalEmitted:            "Signal %s (z=%.2f slope=%.4f threshold=%.3f)",

	// Risk
	ThresholdAdjusted: "Threshold adjusted: %.3f -> %.3f",
	StakeReduced:      "Stake reduced after %d consecutive losses: %.2f",

	// Session
	SessionStarted:    "Session %s started (initial balance %.2f)",
	SessionStopped:    "Session stopped: %s",
	CyclePanic:        "PANIC in trading cycle: %v",
	PriceFeedLost:     "Price feed lost, stopping session: %v",
	TradeResult:       "%s | trade #%d | %s stake=%.2f P/L=%+.2f balance=%.2f",
	PeriodicSummary:   "Summary: trades=%d win_rate=%.1f%% profit=%+.2f max_drawdown=%.2f",
	FinalReport:       "Session report: duration=%.1fm trades=%d trades/h=%.1f initial=%.2f final=%.2f change=%+.2f",
	ProfitTargetHit:   "PROFIT TARGET REACHED: %.2f",
	LossLimitHit:      "LOSS LIMIT REACHED: %.2f",
	MaxTradesHit:      "MAX TRADES REACHED: %d",
	ManualStop:        "Manual stop requested",
	RecommendRaise:    "Consider increasing the z-score threshold to 2.3",
	RecommendReduce:   "Reduce stake size",
	RecommendWorking:  "Strategy is working well",
	RecommendIncrease: "Consider increasing stake gradually",

	// Journal
	JournalEnabled:     "Trade journal enabled: %s",
	JournalWriteFailed: "Trade journal write failed: %v",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:         "啟動均值回歸交易核心...",
	ConfigLoaded:     "設定已載入（商品：%s，最大交易數：%d）",
	ConfigLoadFailed: "讀取設定失敗：%v",
	ConfigInvalid:    "交易設定無效：%v",
	UsingDBPath:      "使用資料庫路徑：%s",
	ServerListening:  "報表 API 監聽於 :%s",
	APIServerError:   "API 伺服器錯誤：%v",
	ShuttingDown:     "正在優雅關閉...",
	DemoMode:         "使用模擬帳戶（虛擬資金）",
	LiveModeWarning:  "使用真實帳戶 - 真實資金！",
	DryRunMode:       "DRY-RUN 模式（交易為模擬，不會送出至券商）",

	// Broker
	BrokerConnected:     "連線成功！餘額：%.2f",
	BrokerConnectFailed: "無法連線至券商：%v",
	TradeExecuting:      "執行 %s 交易，金額 %.2f",
	TradeFailed:         "下單失敗：%v",
	SettleFailed:        "交易結算失敗：%v",

	// Market
	PriceFetchFailed: "取得價格失敗，略過本輪：%v",
	MockFeedStarted:  "模擬行情已啟動，起始價 %.2f",
	TickFeedStarted:  "已訂閱報價串流：%s",

	// Strategy
	StrategyConfigLoaded:     "已從 %s 載入策略參數",
	StrategyConfigLoadFailed: "讀取策略參數失敗：%v",
	SignalEmitted:            "訊號 %s（z=%.2f 斜率=%.4f 門檻=%.3f）",

	// Risk
	ThresholdAdjusted: "門檻調整：%.3f -> %.3f",
	StakeReduced:      "連續虧損 %d 次後降低下注：%.2f",

	// Session
	SessionStarted:    "交易階段 %s 已開始（初始餘額 %.2f）",
	SessionStopped:    "交易階段已停止：%s",
	CyclePanic:        "交易循環發生 PANIC：%v",
	PriceFeedLost:     "價格來源中斷，停止交易階段：%v",
	TradeResult:       "%s | 第 %d 筆 | %s 下注=%.2f 損益=%+.2f 餘額=%.2f",
	PeriodicSummary:   "摘要：交易=%d 勝率=%.1f%% 損益=%+.2f 最大回撤=%.2f",
	FinalReport:       "階段報告：時長=%.1f 分 交易=%d 每小時=%.1f 初始=%.2f 最終=%.2f 變化=%+.2f",
	ProfitTargetHit:   "已達獲利目標：%.2f",
	LossLimitHit:      "已達虧損上限：%.2f",
	MaxTradesHit:      "已達最大交易數：%d",
	ManualStop:        "使用者要求停止",
	RecommendRaise:    "建議將 z 分數門檻提高至 2.3",
	RecommendReduce:   "降低下注金額",
	RecommendWorking:  "策略運作良好",
	RecommendIncrease: "可考慮逐步提高下注",

	// Journal
	JournalEnabled:     "交易日誌已啟用：%s",
	JournalWriteFailed: "寫入交易日誌失敗：%v",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
