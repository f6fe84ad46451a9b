package mysql

const insertReviewSQL = `
INSERT INTO accessibility_reviews
  (id, place_id, place_name, user_id, physical_rating, sensory_rating, cognitive_rating, review_text, photos, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Sums are incremented in place, so concurrent submissions serialize on the
// row lock instead of overwriting each other.
const applyReviewSQL = `
INSERT INTO places
  (place_id, name, review_count, physical_sum, sensory_sum, cognitive_sum, last_updated)
VALUES
  (?, ?, 1, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name          = IF(VALUES(name) <> '', VALUES(name), places.name),
  review_count  = places.review_count + 1,
  physical_sum  = places.physical_sum + VALUES(physical_sum),
  sensory_sum   = places.sensory_sum + VALUES(sensory_sum),
  cognitive_sum = places.cognitive_sum + VALUES(cognitive_sum),
  last_updated  = VALUES(last_updated)
`

const replaceAggregateSQL = `
INSERT INTO places
  (place_id, name, review_count, physical_sum, sensory_sum, cognitive_sum, last_updated)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name          = VALUES(name),
  review_count  = VALUES(review_count),
  physical_sum  = VALUES(physical_sum),
  sensory_sum   = VALUES(sensory_sum),
  cognitive_sum = VALUES(cognitive_sum),
  last_updated  = VALUES(last_updated)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getAggregateSQL = `
SELECT place_id, name, review_count, physical_sum, sensory_sum, cognitive_sum, last_updated
FROM places
WHERE place_id = ?
`

const lockPlaceSQL = `SELECT name FROM places WHERE place_id = ? FOR UPDATE`

const reviewColumns = `
  id, place_id, place_name, user_id,
  physical_rating, sensory_rating, cognitive_rating,
  review_text, photos, created_at, updated_at
`

const listReviewsSQL = `SELECT` + reviewColumns + `
FROM accessibility_reviews
WHERE place_id = ?
ORDER BY created_at DESC, id DESC
`

const listReviewsForUpdateSQL = `SELECT` + reviewColumns + `
FROM accessibility_reviews
WHERE place_id = ?
FOR SHARE
`

const listUserReviewsSQL = `SELECT` + reviewColumns + `
FROM accessibility_reviews
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
`

const listPlaceIDsSQL = `SELECT place_id FROM places ORDER BY place_id`

const insertUserSQL = `
INSERT INTO users (id, email, display_name, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)
`

const getUserByEmailSQL = `
SELECT id, email, display_name, password_hash, created_at
FROM users
WHERE email = ?
`
