package workflow

import "github.com/AleutianAI/ragflow/services/ragcore/datatypes"

var nodeLabels = map[datatypes.Node]string{
	datatypes.NodeStart:                "n1_start",
	datatypes.NodeRewriteQuery:         "n2_rewrite_query",
	datatypes.NodePublishQueryN3:       "n3_publish_query",
	datatypes.NodeDecideNeedInfo:       "n4_decide_need_info",
	datatypes.NodeChooseSource:         "n5_choose_source",
	datatypes.NodeRetrieve:             "n6_retrieve",
	datatypes.NodePublishContext:       "n7_publish_context",
	datatypes.NodePublishQueryN8:       "n8_publish_query",
	datatypes.NodeGenerateAnswer:       "n9_generate_answer",
	datatypes.NodeDecideAnswerRelevant: "n10_decide_answer_relevant",
	datatypes.NodeTerminalAccept:       "n11_terminal_accept",
	datatypes.NodeLoopbackOrTerminate:  "n12_loopback_or_terminate",
}

func nodeLabel(n datatypes.Node) string {
	if label, ok := nodeLabels[n]; ok {
		return label
	}
	return "unknown"
}
