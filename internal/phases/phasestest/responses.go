// Package phasestest holds canned analysis answers for tests.
package phasestest

// Phase1 classifies two entries of an auth log, wrapped in a markdown fence.
const Phase1 = "Here is the analysis:\n```json\n" + `{
  "nonCompliantLogs": [{
    "timestamp": "2025-01-14T10:02:11Z",
    "request_id": "req-1001",
    "source": "auth-service",
    "username": "jdoe",
    "resource": "/api/admin/users",
    "action": "DELETE",
    "nist_category": "IA",
    "violation_details": "COMPLIANCE ISSUE: credential reuse detected",
    "nist_reference": "IA-5"
  }],
  "compliantLogs": [{
    "timestamp": "2025-01-14T10:03:40Z",
    "request_id": "req-1002",
    "resource": "db://orders",
    "action": "READ",
    "nist_category": "SI"
  }]
}` + "\n```\n"

// Phase2 verifies both phase 1 entries.
const Phase2 = `{
  "verifiedFindings": [
    {"request_id": "req-1001", "ground_truth_match": true, "corrected_nist_category": "IA", "severity": "CRITICAL", "evidence": ["credential reuse detected"]},
    {"request_id": "req-1002", "ground_truth_match": true, "severity": "LOW"}
  ],
  "falsePositives": [],
  "missedEntries": [{"request_id": "req-1003"}]
}`

// Phase2UnknownID verifies an id phase 1 never reported.
const Phase2UnknownID = `{
  "verifiedFindings": [
    {"request_id": "req-1001", "ground_truth_match": true, "severity": "HIGH"},
    {"request_id": "req-9999", "ground_truth_match": false, "severity": "LOW"}
  ],
  "falsePositives": ["req-1002"],
  "missedEntries": []
}`

// Phase3 confirms req-1001.
const Phase3 = `{
  "validatedResults": [
    {"request_id": "req-1001", "nist_category": "IA", "severity": "CRITICAL", "compliance_status": "CONFIRMED", "related_entries": ["req-1002"]}
  ],
  "statistics": {"precision_score": 92.5, "recall_score": 88, "accuracy_score": 90},
  "validation_report": "One confirmed IA violation."
}`

// Unparsable is prose with no JSON object.
const Unparsable = "I could not analyze this document."
