// Package http exposes the studio over a JSON API.
//
// The router exposes the following endpoints:
//   - GET /health, GET /metrics (Prometheus exposition), POST /refresh (reload
//     every cached collection).
//   - GET /courses, POST /courses, GET|PATCH|DELETE /courses/{courseId}: course
//     catalog exchanging the courseDTO payload. PATCH bodies are partial: absent
//     keys are left alone, null clears the field.
//   - GET /courses/{courseId}/overrides, PUT|DELETE
//     /courses/{courseId}/overrides/{date}: one override per course and date.
//   - GET /courses/{courseId}/lessons/{date}: the lessons of a day after overrides.
//   - GET /lessons?from&to: every lesson in a date range with booking counts.
//   - GET /bookings?userId|date|courseId&date[&remote=true], POST /bookings,
//     DELETE /bookings/{bookingId}.
//   - GET /members, POST /members, GET|PATCH|DELETE /members/{memberId}. DELETE
//     also removes the member's bookings and payments and reports every step.
//   - POST|PUT /members/{memberId}/lessons, GET /members/{memberId}/balance.
//   - GET /members/{memberId}/payments, GET|PUT /members/{memberId}/payments/{month},
//     POST /members/{memberId}/payments/{month}/toggle, GET /members/payments/current.
//   - GET /reports/unpaid?month: monthly-tier members split by paid state.
//   - GET /expenses, POST /expenses, PATCH|DELETE /expenses/{expenseId},
//     GET /expenses/summary?month[&months].
//   - GET /pending, POST /pending, POST /pending/claim, PATCH|DELETE /pending/{pendingId}.
//   - GET /census?q, POST /census, GET|PATCH|DELETE /census/{personId},
//     POST /census/{personId}/lessons and the same payment routes as members.
//
// Validation errors answer 422 with per-field messages, unknown ids 404 and
// document store failures 502.
package http
