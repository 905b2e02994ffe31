package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsQueriesProcessed is base for counter metric for total queries processed by the agent
	StatsQueriesProcessed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_processed",
		Help:         "stats_queries_processed provides total queries processed by the agent",
		RequiredTags: []string{"mode"},
	}

	StatsQueriesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_failed",
		Help:         "stats_queries_failed provides total queries that returned unsuccessful result",
		RequiredTags: []string{"mode"},
	}

	StatsGenerationCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generation_calls_succeeded",
		Help:         "stats_generation_calls_succeeded provides total generation calls succeeded",
		RequiredTags: []string{"model"},
	}

	StatsGenerationCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generation_calls_failed",
		Help:         "stats_generation_calls_failed provides total generation calls failed",
		RequiredTags: []string{"model"},
	}

	StatsGenerationBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generation_bytes_sent",
		Help:         "stats_generation_bytes_sent provides total prompt bytes sent to the generation backend",
		RequiredTags: []string{"model"},
	}

	StatsGenerationBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generation_bytes_received",
		Help:         "stats_generation_bytes_received provides total bytes received from the generation backend",
		RequiredTags: []string{"model"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFallback = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_fallback",
		Help:         "stats_tool_calls_fallback provides total tool calls retried with the fallback request",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallParseErrors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_call_parse_errors",
		Help:         "stats_tool_call_parse_errors provides total model responses that could not be parsed as tool calls",
		RequiredTags: []string{"mode"},
	}

	StatsChainStepsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chain_steps_failed",
		Help:         "stats_chain_steps_failed provides total chain steps failed",
		RequiredTags: []string{"step"},
	}

	StatsChainStepsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chain_steps_succeeded",
		Help:         "stats_chain_steps_succeeded provides total chain steps succeeded",
		RequiredTags: []string{"step"},
	}

	StatsConversationsEvicted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conversations_evicted",
		Help:         "stats_conversations_evicted provides total conversations evicted from memory",
		RequiredTags: []string{"store"},
	}
)

// Perf
var (
	PerfQuery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_query",
		Help:         "perf_query provides duration of query processing",
		RequiredTags: []string{"mode"},
	}

	PerfGenerationCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_generation_call",
		Help:         "perf_generation_call provides duration of generation call",
		RequiredTags: []string{"model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfChainRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chain_run",
		Help:         "perf_chain_run provides duration of prompt chain execution",
		RequiredTags: []string{"steps"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfChainRun,
	&PerfGenerationCall,
	&PerfQuery,
	&PerfToolCall,
	&StatsChainStepsFailed,
	&StatsChainStepsSucceeded,
	&StatsConversationsEvicted,
	&StatsGenerationBytesReceived,
	&StatsGenerationBytesSent,
	&StatsGenerationCallsFailed,
	&StatsGenerationCallsSucceeded,
	&StatsQueriesFailed,
	&StatsQueriesProcessed,
	&StatsToolCallParseErrors,
	&StatsToolCallsFailed,
	&StatsToolCallsFallback,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
